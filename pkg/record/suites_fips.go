//go:build fips
// +build fips

// This file is compiled when the "fips" build tag is specified.
// In FIPS mode, SupportedSuites lists only FIPS 140-3 approved cipher
// suites; NewCipher and SuiteByID do not consult that list.
package record

import "github.com/dkhalov/tlswire/internal/constants"

// SupportedSuites returns the cipher suites available in FIPS mode.
// ChaCha20-Poly1305 and AEGIS-128L are excluded as they are not approved.
func SupportedSuites() []constants.CipherSuite {
	return []constants.CipherSuite{
		constants.TLSAES128GCMSHA256,
		constants.TLSAES256GCMSHA384,
		constants.TLSECDHERSAWithAES128GCMSHA256,
		constants.TLSECDHERSAWithAES256GCMSHA384,
		constants.TLSECDHERSAWithAES128CBCSHA256,
	}
}

// PreferredSuite returns the default suite for new connections.
func PreferredSuite() constants.CipherSuite {
	return constants.TLSAES128GCMSHA256
}
