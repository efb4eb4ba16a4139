// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxNameLength limita nomes sanitizados a 100 runes.
const maxNameLength = 100

// invalidNameRunes são os caracteres substituídos por '_' em nomes de
// arquivos e diretórios. Inclui separadores de caminho e os caracteres
// reservados do Windows para manter os nomes portáveis entre sistemas.
const invalidNameRunes = `/\:*?"<>|`

// SanitizeName normaliza o nome para NFC, substitui caracteres inválidos
// e de controle por '_' e corta o resultado em maxNameLength runes.
// Nomes compostos apenas por espaços ou pontos viram "_" para nunca
// produzir um componente de caminho vazio ou relativo.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	count := 0
	for _, r := range name {
		if count >= maxNameLength {
			break
		}
		if r < 0x20 || r == 0x7f || strings.ContainsRune(invalidNameRunes, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
		count++
	}

	out := strings.Trim(b.String(), " ")
	if out == "" || strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}

// foldName reduz um nome à forma usada nas comparações de unicidade:
// NFC + minúsculas. Dois nomes com o mesmo fold colidem no mesmo
// diretório pai.
func foldName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}
