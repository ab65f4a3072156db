package model

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainDefinition separates definition digests from any other hash use.
// The version suffix allows an algorithm migration.
const DomainDefinition = "lattice/definition/v1"

// DefinitionDigest returns the content digest of a flow definition.
// Format: hex(SHA256(domain + 0x00 + NFC(code))).
func DefinitionDigest(code string) string {
	h := sha256.New()
	h.Write([]byte(DomainDefinition))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(code)))
	return hex.EncodeToString(h.Sum(nil))
}
