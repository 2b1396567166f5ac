//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package encoding converts corpus files to UTF-8.
package encoding

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Names reported by ToUTF8.
const (
	UTF8        = "utf-8"
	UTF16       = "utf-16"
	GBK         = "gbk"
	Windows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ToUTF8 decodes b to UTF-8 and names the source encoding. A byte order mark
// decides when present. Otherwise valid UTF-8 is kept, text with GBK lead and
// trail byte pairs is decoded as GBK and anything else as Windows-1252.
func ToUTF8(b []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return string(b[len(bomUTF8):]), UTF8, nil
	case bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", UTF16, fmt.Errorf("decode %s: %w", UTF16, err)
		}
		return string(out), UTF16, nil
	case utf8.Valid(b):
		return string(b), UTF8, nil
	case likelyGBK(b):
		out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
		if err != nil {
			return "", GBK, fmt.Errorf("decode %s: %w", GBK, err)
		}
		return string(out), GBK, nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", Windows1252, fmt.Errorf("decode %s: %w", Windows1252, err)
	}
	return string(out), Windows1252, nil
}

// likelyGBK reports whether most bytes in the GBK lead range are followed by
// a valid trail byte.
func likelyGBK(b []byte) bool {
	valid, total := 0, 0
	for i := 0; i < len(b)-1; i++ {
		if b[i] < 0x81 || b[i] > 0xFE {
			continue
		}
		total++
		if next := b[i+1]; (next >= 0x40 && next <= 0x7E) || (next >= 0x80 && next <= 0xFE) {
			valid++
			i++
		}
	}
	return valid >= 2 && float64(valid)/float64(total) > 0.8
}
