// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implementa o protocolo binário N-Drive para comunicação
// entre client e server sobre TCP: frames com prefixo de tamanho e pacotes
// de request/response serializados em little-endian.
package protocol

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion é a versão atual do protocolo. Pacotes com outra versão
// são rejeitados com ErrUnsupportedVersion.
const ProtocolVersion byte = 0x01

// MaxFrameSize é o tamanho máximo aceito de um frame (prefixo excluído).
// Frames maiores indicam um peer mal-comportado e encerram a conexão.
const MaxFrameSize = 25 * 1024 * 1024 // 25 MiB

// Erros do protocolo.
var (
	ErrConnectionClosed   = errors.New("protocol: connection closed")
	ErrInvalidFrameLength = errors.New("protocol: invalid frame length")
	ErrFrameTooLarge      = errors.New("protocol: frame exceeds maximum size")
	ErrTruncatedFrame     = errors.New("protocol: truncated frame")
	ErrUnsupportedVersion = errors.New("protocol: unsupported protocol version")
	ErrMalformedPacket    = errors.New("protocol: malformed packet")
)

// Chaves de metadata reconhecidas nos pacotes. Valores viajam como strings
// decimais ("0", "1", ...) ou booleanas ("true"/"false").
const (
	MetaFileID              = "FileId"
	MetaChunkIndex          = "ChunkIndex"
	MetaIsLastChunk         = "IsLastChunk"
	MetaDirectoryID         = "DirectoryId"
	MetaParentDirectoryID   = "ParentDirectoryId"
	MetaRecursive           = "Recursive"
	MetaOriginalCommandCode = "OriginalCommandCode"
)

// Packet é a unidade de mensagem do protocolo. Imutável após construção:
// handlers criam um novo Packet para a resposta em vez de mutar o request.
//
// Layout no wire (tudo little-endian):
//
//	[Version u8] [Command i32] [PacketID 16B]
//	[UserIDLen i32] [UserID UTF-8]
//	[Timestamp i64]
//	[MetaCount i32] ([KeyLen i32] [Key] [ValueLen i32] [Value])*
//	[PayloadLen i32] [Payload]
type Packet struct {
	Command   int32
	ID        uuid.UUID
	UserID    string
	Timestamp int64 // ticks de 100ns desde o epoch Unix (ver TicksFromTime)
	Metadata  map[string]string
	Payload   []byte
}

// NewPacket cria um pacote com ID novo e timestamp corrente.
func NewPacket(command int32, userID string) *Packet {
	return &Packet{
		Command:   command,
		ID:        uuid.New(),
		UserID:    userID,
		Timestamp: TicksFromTime(time.Now()),
		Metadata:  make(map[string]string),
	}
}

// Meta retorna o valor de uma chave de metadata ("" quando ausente).
func (p *Packet) Meta(key string) string {
	return p.Metadata[key]
}

// MetaBool interpreta uma chave de metadata como booleano.
// Chave ausente ou valor inválido retornam false.
func (p *Packet) MetaBool(key string) bool {
	v, err := strconv.ParseBool(p.Metadata[key])
	return err == nil && v
}

// MetaInt interpreta uma chave de metadata como inteiro decimal.
func (p *Packet) MetaInt(key string) (int, bool) {
	v, err := strconv.Atoi(p.Metadata[key])
	if err != nil {
		return 0, false
	}
	return v, true
}

// TicksFromTime converte um time.Time para ticks de 100 nanossegundos
// contados a partir de 1970-01-01T00:00:00Z. É a única representação de
// timestamp usada no wire.
func TicksFromTime(t time.Time) int64 {
	return t.UnixNano() / 100
}

// TimeFromTicks converte ticks de 100ns (epoch Unix) para time.Time em UTC.
func TimeFromTicks(ticks int64) time.Time {
	return time.Unix(0, ticks*100).UTC()
}
