// Status-word bit encoding shared with the domain-decomposition layer.

package particle

// Migration direction bits in the per-particle status word. The domain
// decomposition layer sets one bit per boundary a particle has crossed; the
// classifier tests them, and Append clears them on arrival.
const (
	SendEast uint32 = 1 << iota
	SendWest
	SendNorth
	SendSouth
	SendUp
	SendDown
)

// MigrateMask covers every migration direction bit.
const MigrateMask = SendEast | SendWest | SendNorth | SendSouth | SendUp | SendDown
