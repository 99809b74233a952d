package room

const (
	// MaxTeamNum is the highest playable team and color.
	MaxTeamNum = 12
	// SpectateTeam marks a player who watches instead of playing.
	SpectateTeam = MaxTeamNum + 1

	DefaultMaxRoomCount = 5

	roomIDLength = 4
)

// SpeedOptions are the accepted game speeds.
var SpeedOptions = []float64{0.5, 1, 2, 3, 4}

// ForceStartOK[n] is how many force-start votes start a room with n playing members.
var ForceStartOK = [MaxTeamNum + 1]int{1, 2, 2, 3, 3, 4, 5, 5, 6, 6, 7, 7, 8}

func defaultOptions() GameOptions {
	return GameOptions{
		RoomName:        "Untitled",
		MaxPlayers:      8,
		GameSpeed:       1,
		MapWidth:        0.5,
		MapHeight:       0.5,
		Mountain:        0.5,
		City:            0.5,
		Swamp:           0,
		FogOfWar:        true,
		DeathSpectating: true,
		RevealKing:      false,
		WarringState:    false,
	}
}
