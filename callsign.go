package main

import (
	"regexp"
	"strings"
)

// callsignPattern and gridPattern are grounded on the teacher's
// decoder_parser.go regex set (deleted), kept verbatim since FT8/FT4
// callsign and grid grammar doesn't change between deployments.
var (
	callsignPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z0-9]{0,3}[A-Z]$|^[A-Z0-9/]+[0-9][A-Z0-9/]+$`)
	gridPattern      = regexp.MustCompile(`^[A-R]{2}[0-9]{2}([a-x]{2}([0-9]{2})?)?$`)
)

// ParsedMessage is the decomposition of a standard FT8/FT4 message into
// its two callsign slots and trailing report/roger field, used by the
// operator state machine (C7) to decide "addressed to me" and "matches
// target" per spec.md §4.7.
type ParsedMessage struct {
	FirstCallsign  string
	SecondCallsign string
	ThirdField     string // report, RR73, RRR, or grid
	IsCQ           bool
}

// ParseMessage splits a decoded message into its fields. The FT8/FT4
// standard message grammar is always up to three space-separated
// fields: "<first> <second> <third>", where first is always the
// transmitting station's callsign (or the literal "CQ").
func ParseMessage(message string) ParsedMessage {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(message)))
	var pm ParsedMessage
	if len(fields) == 0 || fields[0] == "<...>" {
		return pm
	}
	if fields[0] == "CQ" {
		pm.IsCQ = true
		if len(fields) > 1 {
			pm.SecondCallsign = fields[1]
		}
		if len(fields) > 2 {
			pm.ThirdField = fields[2]
		}
		return pm
	}
	if len(fields) > 0 {
		pm.FirstCallsign = fields[0]
	}
	if len(fields) > 1 {
		pm.SecondCallsign = fields[1]
	}
	if len(fields) > 2 {
		pm.ThirdField = fields[2]
	}
	return pm
}

// IsValidCallsign reports whether s looks like an amateur radio
// callsign, tolerating portable/mobile suffixes (e.g., "G8SCU/P") and
// excluding the RR73 roger token, which the broader pattern would accept.
func IsValidCallsign(s string) bool {
	s = strings.Trim(s, "<>")
	if len(s) < 3 || len(s) > 15 {
		return false
	}
	upper := strings.ToUpper(s)
	if upper == "RR73" {
		return false
	}
	return callsignPattern.MatchString(upper)
}

// IsValidGrid reports whether s looks like a 4 or 6 character
// Maidenhead grid locator, excluding report/roger tokens that share
// its length.
func IsValidGrid(s string) bool {
	if len(s) != 4 && len(s) != 6 {
		return false
	}
	upper := strings.ToUpper(s)
	if upper == "RR73" || upper == "RRR" {
		return false
	}
	if len(s) >= 2 {
		s = strings.ToUpper(s[0:2]) + s[2:]
	}
	if len(s) >= 6 {
		s = s[0:4] + strings.ToLower(s[4:6]) + s[6:]
	}
	return gridPattern.MatchString(s)
}

// AddressedToMe reports whether a decoded message's second callsign
// equals myCallsign, per spec.md §4.7's "addressed to me" predicate.
func AddressedToMe(pm ParsedMessage, myCallsign string) bool {
	return !pm.IsCQ && pm.SecondCallsign != "" && pm.SecondCallsign == strings.ToUpper(myCallsign)
}

// MatchesTarget reports whether a decoded message's first callsign
// equals targetCallsign, per spec.md §4.7's "matches target" predicate.
func MatchesTarget(pm ParsedMessage, targetCallsign string) bool {
	return pm.FirstCallsign != "" && pm.FirstCallsign == strings.ToUpper(targetCallsign)
}
