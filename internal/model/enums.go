package model

type VoiceMode string

const (
	VoiceModeOff        VoiceMode = "off"
	VoiceModePushToTalk VoiceMode = "pushToTalk"
	VoiceModeAlwaysOn   VoiceMode = "alwaysOn"
)

func (m VoiceMode) Valid() bool {
	switch m {
	case VoiceModeOff, VoiceModePushToTalk, VoiceModeAlwaysOn:
		return true
	}
	return false
}

type CaptureStatus string

const (
	CaptureIdle      CaptureStatus = "idle"
	CaptureListening CaptureStatus = "listening"
)

type PlaybackStatus string

const (
	PlaybackIdle     PlaybackStatus = "idle"
	PlaybackSpeaking PlaybackStatus = "speaking"
)

type PairingStatus string

const (
	PairingStatusPending       PairingStatus = "pending"
	PairingStatusAuthenticated PairingStatus = "authenticated"
	PairingStatusExpired       PairingStatus = "expired"
	PairingStatusFailed        PairingStatus = "failed"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type AnswerKind string

const (
	AnswerKindText      AnswerKind = "text"
	AnswerKindOffer     AnswerKind = "product"
	AnswerKindOfferList AnswerKind = "products"
)
