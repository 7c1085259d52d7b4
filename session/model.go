package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionRecordVersionV1 = 1

// Session defines a public type used by magiclink APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	AccountID string
	TenantID  string
	Principal string

	CreatedAt int64
	ExpiresAt int64
}

// Encode serializes a session into its versioned binary form. SessionID is
// carried by the Redis key, not the payload.
func Encode(sess *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{sess.AccountID, sess.TenantID, sess.Principal} {
		if len(field) > 65535 {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

// Decode parses the versioned binary session form produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	sess := &Session{}

	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&sess.AccountID, &sess.TenantID, &sess.Principal} {
		var fieldLen uint16
		if err := binary.Read(reader, binary.BigEndian, &fieldLen); err != nil {
			return nil, err
		}
		raw := make([]byte, fieldLen)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return sess, nil
}
