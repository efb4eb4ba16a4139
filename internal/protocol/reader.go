// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ReadFrame lê um frame completo: prefixo de 4 bytes little-endian com o
// tamanho N, seguido de exatamente N bytes. Short read no prefixo indica
// peer desconectado (ErrConnectionClosed); short read no corpo indica frame
// truncado (ErrTruncatedFrame).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrInvalidFrameLength
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d bytes", ErrTruncatedFrame, n)
		}
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return body, nil
}

// ReadPacket lê um frame e decodifica o pacote contido nele.
func ReadPacket(r io.Reader) (*Packet, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodePacket(body)
}

// DecodePacket decodifica um pacote a partir do corpo de um frame.
// Todo campo de tamanho é validado contra os bytes restantes antes da
// leitura; input malformado retorna ErrMalformedPacket sem pânico.
func DecodePacket(data []byte) (*Packet, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version byte", ErrMalformedPacket)
	}
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got 0x%02x", ErrUnsupportedVersion, version)
	}

	command, err := readInt32(r, "command code")
	if err != nil {
		return nil, err
	}

	var id [16]byte
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return nil, fmt.Errorf("%w: reading packet id", ErrMalformedPacket)
	}

	userID, err := readString(r, "user id")
	if err != nil {
		return nil, err
	}

	timestamp, err := readInt64(r, "timestamp")
	if err != nil {
		return nil, err
	}

	metaCount, err := readInt32(r, "metadata count")
	if err != nil {
		return nil, err
	}
	// Cada entry ocupa no mínimo 8 bytes (dois length prefixes); um count
	// maior que isso só pode vir de um pacote corrompido.
	if metaCount < 0 || int64(metaCount)*8 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: metadata count %d", ErrMalformedPacket, metaCount)
	}

	metadata := make(map[string]string, metaCount)
	for i := int32(0); i < metaCount; i++ {
		key, err := readString(r, "metadata key")
		if err != nil {
			return nil, err
		}
		value, err := readString(r, "metadata value")
		if err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	payloadLen, err := readInt32(r, "payload length")
	if err != nil {
		return nil, err
	}
	if payloadLen < 0 || int(payloadLen) > r.Len() {
		return nil, fmt.Errorf("%w: payload length %d with %d bytes remaining", ErrMalformedPacket, payloadLen, r.Len())
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: reading payload", ErrMalformedPacket)
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPacket, r.Len())
	}

	return &Packet{
		Command:   command,
		ID:        uuid.UUID(id),
		UserID:    userID,
		Timestamp: timestamp,
		Metadata:  metadata,
		Payload:   payload,
	}, nil
}

func readInt32(r *bytes.Reader, what string) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading %s", ErrMalformedPacket, what)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func readInt64(r *bytes.Reader, what string) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading %s", ErrMalformedPacket, what)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// readString lê um campo string com length prefix i32.
func readString(r *bytes.Reader, what string) (string, error) {
	n, err := readInt32(r, what+" length")
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.Len() {
		return "", fmt.Errorf("%w: %s length %d with %d bytes remaining", ErrMalformedPacket, what, n, r.Len())
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: reading %s", ErrMalformedPacket, what)
	}
	return string(buf), nil
}
