package protocol

import "encoding/json"

// DefaultChannel is the energy prices stream.
const DefaultChannel = "EnergyPricesChannel"

// Command is an outbound ActionCable command. Identifier is itself a JSON
// document encoded as a string.
type Command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

type channelIdentifier struct {
	Channel string `json:"channel"`
}

// Identifier returns the encoded identifier for channel.
func Identifier(channel string) string {
	b, _ := json.Marshal(channelIdentifier{Channel: channel})
	return string(b)
}

// SubscribeCommand builds the subscribe frame for channel.
func SubscribeCommand(channel string) ([]byte, error) {
	return json.Marshal(Command{Command: "subscribe", Identifier: Identifier(channel)})
}
