package main

import "errors"

var (
	// ErrInvalidPlayerCount is returned by InitializeGame when the roster is not exactly nine names.
	ErrInvalidPlayerCount = errors.New("invalid player count")
	ErrDuplicatePlayer    = errors.New("duplicate player name")
	ErrEmptyPlayerName    = errors.New("empty player name")

	// ErrInvalidAction marks a provider decision that names an ineligible target.
	// It never leaves the resolver: the turn becomes an abstain.
	ErrInvalidAction = errors.New("invalid action")

	// ErrProviderFailure wraps transport and parse failures from a DecisionProvider.
	ErrProviderFailure = errors.New("decision provider failure")

	// ErrIllegalPhaseOperation is a contract violation inside the engine.
	// Code paths that detect it panic rather than return it.
	ErrIllegalPhaseOperation = errors.New("illegal phase operation")

	ErrGameNotOver        = errors.New("game is not over")
	ErrNotInitialized     = errors.New("game not initialized")
	ErrAlreadyInitialized = errors.New("game already initialized")
)
