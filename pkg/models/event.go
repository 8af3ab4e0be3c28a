package models

import (
	"strconv"
	"time"
)

// Registry identifies the on-chain registry an event (or trigger) belongs to.
const (
	RegistryIdentity   = "identity"
	RegistryReputation = "reputation"
	RegistryValidation = "validation"
)

// Event is an immutable, normalized on-chain fact produced by the external
// chain listener. Payload fields are nullable because each registry emits a
// different subset of them.
type Event struct {
	ID          string    `json:"id"`
	ChainID     int64     `json:"chain_id"`
	BlockNumber int64     `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    int64     `json:"log_index"`
	Registry    string    `json:"registry"`
	EventType   string    `json:"event_type"`
	AgentID     *int64    `json:"agent_id,omitempty"`
	Timestamp   int64     `json:"timestamp"` // Unix seconds, block time
	CreatedAt   time.Time `json:"created_at"`

	// Identity registry payload
	Owner         *string `json:"owner,omitempty"`
	TokenURI      *string `json:"token_uri,omitempty"`
	MetadataKey   *string `json:"metadata_key,omitempty"`
	MetadataValue *string `json:"metadata_value,omitempty"`

	// Reputation registry payload
	ClientAddress *string  `json:"client_address,omitempty"`
	FeedbackIndex *int64   `json:"feedback_index,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Tag1          *string  `json:"tag1,omitempty"`
	Tag2          *string  `json:"tag2,omitempty"`
	FileURI       *string  `json:"file_uri,omitempty"`
	FileHash      *string  `json:"file_hash,omitempty"`

	// Validation registry payload
	ValidatorAddress *string  `json:"validator_address,omitempty"`
	RequestHash      *string  `json:"request_hash,omitempty"`
	Response         *float64 `json:"response,omitempty"`
	ResponseURI      *string  `json:"response_uri,omitempty"`
	ResponseHash     *string  `json:"response_hash,omitempty"`
	Tag              *string  `json:"tag,omitempty"`
}

// EventNotification is the low-latency push payload announcing a new event.
// It carries just enough to admit and route; the full row is fetched by id.
type EventNotification struct {
	EventID     string `json:"event_id"`
	ChainID     int64  `json:"chain_id"`
	BlockNumber int64  `json:"block_number"`
	EventType   string `json:"event_type"`
	Registry    string `json:"registry"`
}

// Field returns the named event field as a string along with whether the
// field is present. Absent (nil) payload fields report ok=false.
func (e Event) Field(name string) (string, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "chain_id":
		return strconv.FormatInt(e.ChainID, 10), true
	case "block_number":
		return strconv.FormatInt(e.BlockNumber, 10), true
	case "event_type":
		return e.EventType, true
	case "registry":
		return e.Registry, true
	case "agent_id":
		return optInt(e.AgentID)
	case "owner":
		return optStr(e.Owner)
	case "token_uri":
		return optStr(e.TokenURI)
	case "metadata_key":
		return optStr(e.MetadataKey)
	case "metadata_value":
		return optStr(e.MetadataValue)
	case "client_address":
		return optStr(e.ClientAddress)
	case "feedback_index":
		return optInt(e.FeedbackIndex)
	case "score":
		return optFloat(e.Score)
	case "tag1":
		return optStr(e.Tag1)
	case "tag2":
		return optStr(e.Tag2)
	case "file_uri":
		return optStr(e.FileURI)
	case "file_hash":
		return optStr(e.FileHash)
	case "validator_address":
		return optStr(e.ValidatorAddress)
	case "request_hash":
		return optStr(e.RequestHash)
	case "response":
		return optFloat(e.Response)
	case "response_uri":
		return optStr(e.ResponseURI)
	case "response_hash":
		return optStr(e.ResponseHash)
	case "tag":
		return optStr(e.Tag)
	default:
		return "", false
	}
}

// NumericField returns the named event field as a float64. ok is false when
// the field is absent or not numeric.
func (e Event) NumericField(name string) (float64, bool) {
	s, ok := e.Field(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func optStr(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func optInt(i *int64) (string, bool) {
	if i == nil {
		return "", false
	}
	return strconv.FormatInt(*i, 10), true
}

func optFloat(f *float64) (string, bool) {
	if f == nil {
		return "", false
	}
	return strconv.FormatFloat(*f, 'f', -1, 64), true
}
