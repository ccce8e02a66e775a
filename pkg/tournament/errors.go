package tournament

import "errors"

// Configuration errors are returned before any game runs; consistency errors are
// returned while building results.
var (
	ErrInvalidConfig       = errors.New("invalid tournament configuration")
	ErrUnevenPopulation    = errors.New("population cannot be partitioned evenly")
	ErrDuplicatePlayer     = errors.New("duplicate player identity")
	ErrInsufficientPool    = errors.New("strategy pool too small")
	ErrPoolAttitude        = errors.New("strategy pool attitude mismatch")
	ErrMisalignedMatch     = errors.New("match result fields are not aligned")
	ErrNoMatches           = errors.New("no match results")
	ErrUnequalGames        = errors.New("players have unequal games played")
	ErrUnequalMatches      = errors.New("compositions have unequal matches played")
	ErrCompositionMismatch = errors.New("composition does not add up to group size")
	ErrCorruptResults      = errors.New("corrupt tournament results")
	ErrUnknownResultType   = errors.New("unknown result type")
)
