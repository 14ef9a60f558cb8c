package logline

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldOrder fixes the order of the three ACCESS fields after the door id.
type FieldOrder string

const (
	// ReaderAuthCard is the v1 canonical order: reader, authorization, card.
	ReaderAuthCard FieldOrder = "reader-auth-card"
	// ReaderCardAuth is the legacy order some controllers still emit.
	ReaderCardAuth FieldOrder = "reader-card-auth"
)

// ParseFieldOrder validates a configured order. The empty string selects
// ReaderAuthCard.
func ParseFieldOrder(s string) (FieldOrder, error) {
	switch FieldOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReaderAuthCard:
		return ReaderAuthCard, nil
	case ReaderCardAuth:
		return ReaderCardAuth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFieldOrder, s)
	}
}

// Authorization words accepted on decode. Encode writes the first two only.
const (
	wordAuthorized   = "authorized"
	wordUnauthorized = "unauthorized"
)

var authWords = map[string]bool{
	wordAuthorized:   true,
	wordUnauthorized: false,
	"denied":         false,
	"not-authorized": false,
}

var readerNames = map[string]int{
	"internal": ReaderInternal,
	"external": ReaderExternal,
}

// Codec converts between Events and wire lines. It is immutable and safe for
// concurrent use.
type Codec struct {
	order FieldOrder
}

// NewCodec returns a codec for the given access field order. An unknown
// order falls back to ReaderAuthCard; validate with ParseFieldOrder first.
func NewCodec(order FieldOrder) *Codec {
	if order != ReaderCardAuth {
		order = ReaderAuthCard
	}
	return &Codec{order: order}
}

// Order returns the access field order in use.
func (c *Codec) Order() FieldOrder {
	return c.order
}

// Decode parses one line. Errors are *ParseError.
func (c *Codec) Decode(line string) (Event, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Event{}, parseErr(line, "line", "empty")
	}
	if len(tokens) < 2 {
		return Event{}, parseErr(line, "tag", "missing")
	}

	ev := Event{Timestamp: tokens[0]}

	tag, next, perr := joinTag(line, tokens)
	if perr != nil {
		return Event{}, perr
	}

	kind, boot, perr := parseTag(line, tag)
	if perr != nil {
		return Event{}, perr
	}
	ev.Kind = kind
	ev.BootCount = boot

	rest := tokens[next:]
	if len(rest) == 0 {
		return Event{}, parseErr(line, "door_id", "missing")
	}
	door, err := strconv.Atoi(rest[0])
	if err != nil || door < 0 {
		return Event{}, parseErr(line, "door_id", fmt.Sprintf("not a non-negative integer: %q", rest[0]))
	}
	ev.DoorID = door
	rest = rest[1:]

	if kind == KindSystem {
		ev.Message = strings.Join(rest, " ")
		return ev, nil
	}

	if len(rest) < 3 {
		return Event{}, parseErr(line, "access", fmt.Sprintf("want 3 fields after door id, got %d", len(rest)))
	}
	if len(rest) > 3 {
		return Event{}, parseErr(line, "access", fmt.Sprintf("unexpected trailing tokens: %q", strings.Join(rest[3:], " ")))
	}

	readerTok, authTok, cardTok := rest[0], rest[1], rest[2]
	if c.order == ReaderCardAuth {
		cardTok, authTok = rest[1], rest[2]
	}

	if ev.ReaderID, perr = parseReader(line, readerTok); perr != nil {
		return Event{}, perr
	}

	auth, ok := authWords[strings.ToLower(authTok)]
	if !ok {
		return Event{}, parseErr(line, "authorized", fmt.Sprintf("unknown word %q", authTok))
	}
	ev.Authorized = auth

	card, err := strconv.ParseInt(cardTok, 10, 64)
	if err != nil || card < 0 {
		return Event{}, parseErr(line, "card_id", fmt.Sprintf("not a non-negative integer: %q", cardTok))
	}
	ev.CardID = card

	return ev, nil
}

// joinTag rejoins a type tag split over several tokens, for example
// "(SYSTEM" "/BOOT#4):". It returns the tag and the index of the first token
// after it.
func joinTag(line string, tokens []string) (string, int, *ParseError) {
	if !strings.HasPrefix(tokens[1], "(") {
		return "", 0, parseErr(line, "tag", fmt.Sprintf("must start with '(': %q", tokens[1]))
	}

	var b strings.Builder
	for i := 1; i < len(tokens); i++ {
		b.WriteString(tokens[i])
		if strings.Contains(tokens[i], ")") {
			return b.String(), i + 1, nil
		}
	}
	return "", 0, parseErr(line, "tag", "unterminated")
}

// parseTag extracts the kind and boot count from "(KIND[/BOOT#N]):".
func parseTag(line, tag string) (Kind, int, *ParseError) {
	closeIdx := strings.Index(tag, ")")
	if rem := tag[closeIdx+1:]; rem != "" && rem != ":" {
		return 0, 0, parseErr(line, "tag", fmt.Sprintf("unexpected text after ')': %q", rem))
	}
	inner := tag[1:closeIdx]

	kind := KindSystem
	if strings.Contains(inner, "ACCESS") {
		kind = KindAccess
	}

	hash := strings.Index(inner, "#")
	if hash < 0 {
		return kind, NoBootCount, nil
	}
	digits := inner[hash+1:]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, 0, parseErr(line, "boot_count", fmt.Sprintf("not a number: %q", digits))
	}
	boot, err := strconv.Atoi(digits)
	if err != nil {
		return 0, 0, parseErr(line, "boot_count", fmt.Sprintf("out of range: %q", digits))
	}
	return kind, boot, nil
}

func parseReader(line, tok string) (int, *ParseError) {
	if id, ok := readerNames[strings.ToLower(tok)]; ok {
		return id, nil
	}
	id, err := strconv.Atoi(tok)
	if err != nil || id < 0 {
		return 0, parseErr(line, "reader_id", fmt.Sprintf("not a reader name or non-negative integer: %q", tok))
	}
	return id, nil
}

// Encode renders ev in wire format v1. Events that would not decode back to
// the same value are rejected with ErrUnencodable.
func (c *Codec) Encode(ev Event) (string, error) {
	if err := checkEncodable(ev); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(ev.Timestamp)
	b.WriteString(" (")
	b.WriteString(ev.Kind.String())
	if ev.HasBootCount() {
		b.WriteString("/BOOT#")
		b.WriteString(strconv.Itoa(ev.BootCount))
	}
	b.WriteString("): ")
	b.WriteString(strconv.Itoa(ev.DoorID))

	if ev.Kind == KindSystem {
		if ev.Message != "" {
			b.WriteByte(' ')
			b.WriteString(ev.Message)
		}
		return b.String(), nil
	}

	auth := wordUnauthorized
	if ev.Authorized {
		auth = wordAuthorized
	}
	card := strconv.FormatInt(ev.CardID, 10)

	fields := []string{strconv.Itoa(ev.ReaderID), auth, card}
	if c.order == ReaderCardAuth {
		fields[1], fields[2] = card, auth
	}
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	return b.String(), nil
}

func checkEncodable(ev Event) error {
	switch {
	case ev.Timestamp == "":
		return fmt.Errorf("%w: empty timestamp", ErrUnencodable)
	case len(strings.Fields(ev.Timestamp)) != 1 || strings.TrimSpace(ev.Timestamp) != ev.Timestamp:
		return fmt.Errorf("%w: timestamp contains whitespace", ErrUnencodable)
	case ev.DoorID < 0:
		return fmt.Errorf("%w: negative door id", ErrUnencodable)
	case ev.BootCount < NoBootCount:
		return fmt.Errorf("%w: boot count %d", ErrUnencodable, ev.BootCount)
	}

	switch ev.Kind {
	case KindAccess:
		if ev.ReaderID < 0 {
			return fmt.Errorf("%w: negative reader id", ErrUnencodable)
		}
		if ev.CardID < 0 {
			return fmt.Errorf("%w: negative card id", ErrUnencodable)
		}
	case KindSystem:
		if strings.ContainsAny(ev.Message, "\n\x00") {
			return fmt.Errorf("%w: message contains a line separator", ErrUnencodable)
		}
		if strings.Join(strings.Fields(ev.Message), " ") != ev.Message {
			return fmt.Errorf("%w: message must be single-space separated", ErrUnencodable)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrUnencodable, ev.Kind)
	}
	return nil
}
