package models

import "github.com/shopspring/decimal"

// Channel selects the settlement rail and its gateway endpoint
type Channel string

const (
	ChannelRTGS Channel = "rtgs"
	ChannelNEFT Channel = "neft"
)

// RTGSCeiling is the exclusive upper bound of amounts routed over RTGS
var RTGSCeiling = decimal.NewFromInt(200000)

// ChannelForAmount picks the rail for an amount. It is evaluated once at
// submission and stored; polls always use the stored channel.
func ChannelForAmount(amount decimal.Decimal) Channel {
	if amount.LessThan(RTGSCeiling) {
		return ChannelRTGS
	}
	return ChannelNEFT
}

// Valid reports whether c is a known rail
func (c Channel) Valid() bool {
	return c == ChannelRTGS || c == ChannelNEFT
}
