// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// WriteFrame escreve o prefixo de tamanho e o corpo. O corpo já deve estar
// dentro do limite de MaxFrameSize; o caller é responsável pelo flush quando
// w é um writer bufferizado.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return ErrInvalidFrameLength
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// WritePacket codifica o pacote e o escreve como um frame.
func WritePacket(w io.Writer, p *Packet) error {
	body, err := EncodePacket(p)
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// EncodePacket serializa um pacote para o corpo de um frame. A saída é
// determinística: as chaves de metadata são escritas em ordem lexicográfica.
// Nunca muta o pacote nem produz saída parcial.
func EncodePacket(p *Packet) ([]byte, error) {
	size := 1 + 4 + 16 + // version + command + packet id
		4 + len(p.UserID) + // user id
		8 + // timestamp
		4 // metadata count
	keys := make([]string, 0, len(p.Metadata))
	for k, v := range p.Metadata {
		keys = append(keys, k)
		size += 4 + len(k) + 4 + len(v)
	}
	size += 4 + len(p.Payload)

	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: encoded packet is %d bytes", ErrFrameTooLarge, size)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, size)
	buf = append(buf, ProtocolVersion)
	buf = appendInt32(buf, p.Command)
	buf = append(buf, p.ID[:]...)
	buf = appendString(buf, p.UserID)
	buf = appendInt64(buf, p.Timestamp)
	buf = appendInt32(buf, int32(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendString(buf, p.Metadata[k])
	}
	buf = appendInt32(buf, int32(len(p.Payload)))
	buf = append(buf, p.Payload...)

	return buf, nil
}

func appendInt32(buf []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(v))
}

func appendInt64(buf []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(v))
}

func appendString(buf []byte, s string) []byte {
	buf = appendInt32(buf, int32(len(s)))
	return append(buf, s...)
}
