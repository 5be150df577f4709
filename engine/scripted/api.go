package scripted

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/PanMenel/racore/engine"
)

const formContentType = "application/x-www-form-urlencoded"

// baseResponse is embedded in every server reply.
type baseResponse struct {
	Success bool   `json:"Success"`
	Error   string `json:"Error,omitempty"`
	Code    string `json:"Code,omitempty"`
}

type loginResponse struct {
	baseResponse
	User          string `json:"User"`
	DisplayName   string `json:"DisplayName"`
	Token         string `json:"Token"`
	Score         uint32 `json:"Score"`
	SoftcoreScore uint32 `json:"SoftcoreScore"`
}

type gameIDResponse struct {
	baseResponse
	GameID uint32 `json:"GameID"`
}

type patchAchievement struct {
	ID             uint32  `json:"ID"`
	MemAddr        string  `json:"MemAddr"`
	Title          string  `json:"Title"`
	Description    string  `json:"Description"`
	Points         uint32  `json:"Points"`
	BadgeName      string  `json:"BadgeName"`
	Flags          int     `json:"Flags"`
	Type           string  `json:"Type"`
	Rarity         float32 `json:"Rarity"`
	RarityHardcore float32 `json:"RarityHardcore"`
}

type patchData struct {
	ID           uint32             `json:"ID"`
	Title        string             `json:"Title"`
	ConsoleID    uint32             `json:"ConsoleID"`
	ImageIcon    string             `json:"ImageIcon"`
	Achievements []patchAchievement `json:"Achievements"`
}

type patchResponse struct {
	baseResponse
	PatchData patchData `json:"PatchData"`
}

type unlockEntry struct {
	ID   uint32 `json:"ID"`
	When int64  `json:"When"`
}

type startSessionResponse struct {
	baseResponse
	Unlocks         []unlockEntry `json:"Unlocks"`
	HardcoreUnlocks []unlockEntry `json:"HardcoreUnlocks"`
}

type awardResponse struct {
	baseResponse
	AchievementID uint32 `json:"AchievementID"`
	Score         uint32 `json:"Score"`
}

// Achievement flags as served in patch data.
const (
	flagsCore       = 3
	flagsUnofficial = 5
)

// Achievement types as served in patch data.
const (
	typeStandard uint8 = iota
	typeMissable
	typeProgression
	typeWin
)

func achievementType(s string) uint8 {
	switch s {
	case "missable":
		return typeMissable
	case "progression":
		return typeProgression
	case "win_condition":
		return typeWin
	default:
		return typeStandard
	}
}

func form(request string, kv ...string) string {
	v := url.Values{}
	v.Set("r", request)
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v.Encode()
}

func itoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// decode maps a server reply onto a result code and message. out must
// embed baseResponse.
func decode(body []byte, status int, out interface{ base() *baseResponse }) (int, string) {
	if status == 0 && body == nil {
		return engine.NoResponse, engine.ResultString(engine.NoResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		if status >= 400 {
			return engine.NoResponse, "HTTP " + strconv.Itoa(status)
		}
		return engine.InvalidJSON, engine.ResultString(engine.InvalidJSON)
	}

	b := out.base()
	if b.Success {
		return engine.OK, ""
	}

	msg := b.Error
	switch b.Code {
	case "invalid_credentials":
		if msg == "" {
			msg = engine.ResultString(engine.InvalidCredentials)
		}
		return engine.InvalidCredentials, msg
	case "expired_token":
		if msg == "" {
			msg = engine.ResultString(engine.ExpiredToken)
		}
		return engine.ExpiredToken, msg
	case "not_found":
		if msg == "" {
			msg = engine.ResultString(engine.NotFound)
		}
		return engine.NotFound, msg
	}
	if msg == "" {
		msg = "request failed"
	}
	return engine.InvalidState, msg
}

func (b *baseResponse) base() *baseResponse { return b }
