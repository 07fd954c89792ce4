package protocol

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
)

// Wire format: every message is a single newline-terminated line of
// comma-separated decimal fields. Four request frames travel to a collector:
//
//	"<voterID>"            share request
//	"<s1>,<s2>"            secret ballot
//	"AGGREGATE,<v1>,<v2>"  peer share aggregate
//	"CLOSE"                administrative close of the accept phase
//
// and two responses travel back:
//
//	"<partial>,<r1>,<r2>"  share response
//	"ACK,<token>"          ballot acknowledgment
const (
	aggregateTag = "AGGREGATE"
	ackTag       = "ACK"

	// CloseFrame transitions a collector from accepting ballots to
	// aggregating. It replaces the interactive operator prompt.
	CloseFrame = "CLOSE"

	// ClosedResponse acknowledges a CloseFrame.
	ClosedResponse = "CLOSED"
)

// FrameKind classifies an inbound collector frame.
type FrameKind int

const (
	FrameInvalid FrameKind = iota
	FrameShareRequest
	FrameBallot
	FrameAggregate
	FrameClose
)

// ClassifyFrame determines how an inbound line should be dispatched. The
// grammar is unambiguous: a bare integer is a share request, a tagged line is
// a peer aggregate or a close, anything else with a comma is a ballot.
func ClassifyFrame(line string) FrameKind {
	switch {
	case line == CloseFrame:
		return FrameClose
	case strings.HasPrefix(line, aggregateTag+","):
		return FrameAggregate
	case strings.Contains(line, ","):
		return FrameBallot
	default:
		if _, err := strconv.Atoi(line); err == nil {
			return FrameShareRequest
		}
		return FrameInvalid
	}
}

// WriteFrame sends one newline-terminated frame.
func WriteFrame(w io.Writer, frame string) error {
	_, err := io.WriteString(w, frame+"\n")
	return err
}

// ReadFrame receives one newline-terminated frame.
func ReadFrame(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// FormatShareRequest renders a voter's share request.
func FormatShareRequest(voterID int) string {
	return strconv.Itoa(voterID)
}

// ParseShareRequest parses a voter identifier frame.
func ParseShareRequest(line string) (int, error) {
	id, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("malformed voter identifier %q: %w", line, err)
	}
	return id, nil
}

// FormatShareResponse renders a collector's share-service reply.
func FormatShareResponse(partial int64, pair RandomSharePair) string {
	return fmt.Sprintf("%d,%d,%d", partial, pair.R1, pair.R2)
}

// ParseShareResponse parses a share-service reply into the partial location
// value and the random share pair.
func ParseShareResponse(line string) (int64, RandomSharePair, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return 0, RandomSharePair{}, fmt.Errorf("malformed share response %q: want 3 fields, got %d", line, len(fields))
	}
	vals := make([]int64, 3)
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return 0, RandomSharePair{}, fmt.Errorf("malformed share response %q: %w", line, err)
		}
		vals[i] = v
	}
	return vals[0], RandomSharePair{R1: vals[1], R2: vals[2]}, nil
}

// FormatBallot renders a secret ballot frame.
func FormatBallot(b *SecretBallot) string {
	return fmt.Sprintf("%s,%s", b.S1, b.S2)
}

// ParseBallot parses a secret ballot frame.
func ParseBallot(line string) (*SecretBallot, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed ballot %q: want 2 fields, got %d", line, len(fields))
	}
	s1, ok := new(big.Int).SetString(strings.TrimSpace(fields[0]), 10)
	if !ok {
		return nil, fmt.Errorf("malformed ballot %q: non-numeric first field", line)
	}
	s2, ok := new(big.Int).SetString(strings.TrimSpace(fields[1]), 10)
	if !ok {
		return nil, fmt.Errorf("malformed ballot %q: non-numeric second field", line)
	}
	return &SecretBallot{S1: s1, S2: s2}, nil
}

// FormatAck renders a ballot acknowledgment carrying an intake token.
func FormatAck(token string) string {
	return ackTag + "," + token
}

// ParseAck validates an acknowledgment frame and returns its token.
func ParseAck(line string) (string, error) {
	rest, found := strings.CutPrefix(line, ackTag+",")
	if !found || rest == "" {
		return "", fmt.Errorf("malformed acknowledgment %q", line)
	}
	return rest, nil
}

// FormatAggregate renders the inter-collector share aggregate frame.
func FormatAggregate(agg *Aggregate) string {
	return fmt.Sprintf("%s,%s,%s", aggregateTag, agg.V1, agg.V2)
}

// ParseAggregate parses an inter-collector share aggregate frame.
func ParseAggregate(line string) (*Aggregate, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 || fields[0] != aggregateTag {
		return nil, fmt.Errorf("malformed aggregate frame %q", line)
	}
	v1, ok := new(big.Int).SetString(strings.TrimSpace(fields[1]), 10)
	if !ok {
		return nil, fmt.Errorf("malformed aggregate frame %q: non-numeric v1", line)
	}
	v2, ok := new(big.Int).SetString(strings.TrimSpace(fields[2]), 10)
	if !ok {
		return nil, fmt.Errorf("malformed aggregate frame %q: non-numeric v2", line)
	}
	return &Aggregate{V1: v1, V2: v2}, nil
}
