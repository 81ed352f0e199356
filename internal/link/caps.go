package link

// Capability bit indices for the common capability word and the
// per-channel-kind capability words this client negotiates (spec.md §4.1).
// Only the capabilities actually used by this core are named; everything
// else is left unset.
const (
	CommonCapAuthSelection uint = 0
	CommonCapAuthSpice     uint = 1
	CommonCapMiniHeader    uint = 7

	MainCapAgentConnectedTokens uint = 1
	MainCapNameAndUUID          uint = 4

	DisplayCapPreferredCompression uint = 7

	PlaybackCapVolume uint = 2
	RecordCapVolume   uint = 2
)
