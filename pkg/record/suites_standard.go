//go:build !fips
// +build !fips

// This file is compiled when the "fips" build tag is NOT specified.
// In standard mode, all implemented cipher suites are available.
package record

import "github.com/dkhalov/tlswire/internal/constants"

// SupportedSuites returns the cipher suites available in standard mode, in
// preference order. AES-GCM leads due to hardware acceleration on modern
// CPUs; AEGIS-128L outperforms it where AES-NI is available but remains a
// draft code point, so it trails the RFC suites.
func SupportedSuites() []constants.CipherSuite {
	return []constants.CipherSuite{
		constants.TLSAES128GCMSHA256,
		constants.TLSAES256GCMSHA384,
		constants.TLSChaCha20Poly1305SHA256,
		constants.TLSAEGIS128LSHA256,
		constants.TLSECDHERSAWithAES128GCMSHA256,
		constants.TLSECDHERSAWithAES256GCMSHA384,
		constants.TLSECDHERSAWithAES128CBCSHA256,
	}
}

// PreferredSuite returns the default suite for new connections.
func PreferredSuite() constants.CipherSuite {
	return constants.TLSAES128GCMSHA256
}
