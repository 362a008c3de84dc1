package domain

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool { return k == KindAudio || k == KindVideo }

// Producer is a published media stream originating from one participant.
type Producer struct {
	ID    ProducerID   `json:"id"`
	Owner ConnectionID `json:"peerId"`
	Kind  MediaKind    `json:"kind"`
	Muted bool         `json:"muted"`
}
