package main

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventKind names what a GameEvent records.
type EventKind string

const (
	EventGameStart     EventKind = "game_start"
	EventGameEnd       EventKind = "game_end"
	EventRoundStart    EventKind = "round_start"
	EventRoleAssigned  EventKind = "role_assigned"
	EventNightStart    EventKind = "night_start"
	EventNightAction   EventKind = "night_action"
	EventNightEnd      EventKind = "night_end"
	EventDayStart      EventKind = "day_start"
	EventDeathAnnounce EventKind = "death_announce"
	EventPlayerSpeak   EventKind = "player_speak"
	EventVoteStart     EventKind = "vote_start"
	EventVoteResult    EventKind = "vote_result"
	EventDayEnd        EventKind = "day_end"
	EventHunterShot    EventKind = "hunter_shot"
	EventLastWords     EventKind = "last_words"
)

// Night action names carried in the "action" detail of night_action events.
const (
	ActionWerewolfChat = "werewolf_chat"
	ActionWerewolfVote = "werewolf_vote"
	ActionWerewolfKill = "werewolf_kill"
	ActionSeerCheck    = "seer_check"
	ActionWitchSave    = "witch_save"
	ActionWitchPoison  = "witch_poison"
)

// GameEvent is one immutable entry of the event log.
// A private event lists the player ids allowed to see it in VisibleTo.
type GameEvent struct {
	Seq       int            `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Round     int            `json:"round"`
	Phase     Phase          `json:"phase"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
	Public    bool           `json:"public"`
	VisibleTo []int          `json:"visible_to,omitempty"`
}

func publicEvent(kind EventKind, details map[string]any) GameEvent {
	return GameEvent{Kind: kind, Details: details, Public: true}
}

// privateEvent builds an event visible only to viewers. The id set is
// deduplicated and sorted.
func privateEvent(kind EventKind, details map[string]any, viewers ...int) GameEvent {
	ids := slices.Clone(viewers)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return GameEvent{Kind: kind, Details: details, VisibleTo: ids}
}

// VisibleBy reports whether the player with id viewer may observe the event.
func (e GameEvent) VisibleBy(viewer int) bool {
	if e.Public {
		return true
	}
	_, found := slices.BinarySearch(e.VisibleTo, viewer)
	return found
}

// EventLog is the append-only record of a game.
type EventLog struct {
	mu     sync.RWMutex
	events []GameEvent
	now    func() time.Time
}

func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// Add stores a copy of ev with the next sequence number and returns it.
func (l *EventLog) Add(ev GameEvent) GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = len(l.events) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now()
	}
	ev.Details = maps.Clone(ev.Details)
	ev.VisibleTo = slices.Clone(ev.VisibleTo)
	if ev.Public {
		ev.VisibleTo = nil
	}
	l.events = append(l.events, ev)
	return ev
}

// All returns every event in order (god view).
func (l *EventLog) All() []GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// Public returns the public events in order.
func (l *EventLog) Public() []GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []GameEvent
	for _, ev := range l.events {
		if ev.Public {
			out = append(out, ev)
		}
	}
	return out
}

// VisibleTo returns the events the given player may observe, in order.
func (l *EventLog) VisibleTo(viewer int) []GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []GameEvent
	for _, ev := range l.events {
		if ev.VisibleBy(viewer) {
			out = append(out, ev)
		}
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// FormatEvent renders an event as one line of text. Missing details fall
// back to placeholders and unknown kinds print their raw details.
func FormatEvent(ev GameEvent) string {
	d := ev.Details
	switch ev.Kind {
	case EventGameStart:
		return fmt.Sprintf("Game started with %s players: %s.", detail(d, "player_count"), strings.Join(nameList(d["players"]), ", "))
	case EventGameEnd:
		return fmt.Sprintf("Game over! Winner: %s after %s rounds.", detail(d, "winning_team"), detail(d, "rounds"))
	case EventRoundStart:
		return fmt.Sprintf("Round %s begins.", detail(d, "round_number"))
	case EventRoleAssigned:
		s := fmt.Sprintf("%s is the %s.", detail(d, "player_name"), detail(d, "role"))
		if mates := nameList(d["teammates"]); len(mates) > 0 {
			s += " Fellow werewolves: " + strings.Join(mates, ", ") + "."
		}
		return s
	case EventNightStart:
		return fmt.Sprintf("Night %s falls.", detail(d, "round_number"))
	case EventNightAction:
		return formatNightAction(d)
	case EventNightEnd:
		return fmt.Sprintf("Night %s ends.", detail(d, "round_number"))
	case EventDayStart:
		return fmt.Sprintf("Day %s begins.", detail(d, "round_number"))
	case EventDeathAnnounce:
		deaths := recordList(d["deaths"])
		if len(deaths) == 0 {
			return "It was a peaceful night."
		}
		parts := make([]string, 0, len(deaths))
		for _, death := range deaths {
			parts = append(parts, fmt.Sprintf("%s (%s) died: %s",
				detailOr(death, "player_name", "someone"), detail(death, "role"), detail(death, "reason")))
		}
		return "Last night " + strings.Join(parts, "; ") + "."
	case EventPlayerSpeak:
		return fmt.Sprintf("%s: %s", detail(d, "player_name"), detail(d, "message"))
	case EventVoteStart:
		return "Voting begins."
	case EventVoteResult:
		tally := formatTally(d["tally"])
		switch {
		case truthy(d["is_tie"]):
			return "The vote is tied, nobody is exiled." + tally
		case d["voted_name"] == nil || d["voted_name"] == "":
			return "No valid votes were cast, nobody is exiled." + tally
		}
		return fmt.Sprintf("%s (%s) is exiled by vote.%s", detail(d, "voted_name"), detail(d, "role"), tally)
	case EventDayEnd:
		return fmt.Sprintf("Day %s ends.", detail(d, "round_number"))
	case EventHunterShot:
		return fmt.Sprintf("Hunter %s shoots %s (%s).", detail(d, "hunter_name"), detail(d, "target_name"), detail(d, "target_role"))
	case EventLastWords:
		return fmt.Sprintf("[Last words] %s: %s", detail(d, "player_name"), detail(d, "message"))
	}
	return formatRaw(ev.Kind, d)
}

func formatNightAction(d map[string]any) string {
	switch d["action"] {
	case ActionWerewolfChat:
		return fmt.Sprintf("[Werewolves] %s: %s", detail(d, "player_name"), detail(d, "message"))
	case ActionWerewolfVote:
		return fmt.Sprintf("Werewolf %s votes to kill %s.", detail(d, "player_name"), detail(d, "target_name"))
	case ActionWerewolfKill:
		return fmt.Sprintf("The werewolves chose to kill %s.", detail(d, "target_name"))
	case ActionSeerCheck:
		verdict := "not a werewolf"
		if truthy(d["is_werewolf"]) {
			verdict = "a werewolf"
		}
		return fmt.Sprintf("The seer checked %s: %s.", detail(d, "target_name"), verdict)
	case ActionWitchSave:
		return fmt.Sprintf("The witch used the save potion on %s.", detail(d, "target_name"))
	case ActionWitchPoison:
		return fmt.Sprintf("The witch poisoned %s.", detail(d, "target_name"))
	}
	return formatRaw(EventNightAction, d)
}

func detail(d map[string]any, key string) string {
	return detailOr(d, key, "?")
}

func detailOr(d map[string]any, key, placeholder string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return placeholder
	}
	s := fmt.Sprint(v)
	if s == "" {
		return placeholder
	}
	return s
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// recordList accepts both in-memory []map[string]any and JSON-decoded []any.
func recordList(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func nameList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, detail(m, "name"))
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []map[string]any:
		out := make([]string, 0, len(list))
		for _, m := range list {
			out = append(out, detail(m, "name"))
		}
		return out
	}
	return nil
}

func formatTally(v any) string {
	var tally map[string]any
	switch t := v.(type) {
	case map[string]int:
		tally = make(map[string]any, len(t))
		for k, n := range t {
			tally[k] = n
		}
	case map[string]any:
		tally = t
	}
	if len(tally) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, tally[k]))
	}
	return " Votes: " + strings.Join(parts, ", ") + "."
}

func formatRaw(kind EventKind, d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return fmt.Sprintf("[%s] %s", kind, strings.Join(parts, " "))
}
