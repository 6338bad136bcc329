// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"crypto/des" // #nosec G502 - DES is required by VNC protocol specification (RFC 6143)
	"fmt"
	"math/bits"
)

// VNC authentication sizes.
const (
	VNCChallengeSize     = 16
	DESKeySize           = 8
	VNCMaxPasswordLength = 8
)

// clearBytes zeroes sensitive data in place.
func clearBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// encryptChallenge computes the VNC authentication response: the challenge
// encrypted with DES, keyed by the first eight password bytes with each
// byte's bits reversed. Shorter passwords are zero padded.
func encryptChallenge(password string, challenge []byte) ([]byte, error) {
	if len(challenge) != VNCChallengeSize {
		return nil, validationError("encryptChallenge",
			fmt.Sprintf("challenge must be exactly %d bytes, got %d", VNCChallengeSize, len(challenge)), nil)
	}

	key := make([]byte, DESKeySize)
	defer clearBytes(key)

	passwordBytes := []byte(password)
	defer clearBytes(passwordBytes)

	for i := 0; i < DESKeySize && i < len(passwordBytes); i++ {
		key[i] = bits.Reverse8(passwordBytes[i])
	}

	block, err := des.NewCipher(key) // #nosec G405 - DES is required by VNC protocol specification
	if err != nil {
		return nil, authenticationError("encryptChallenge", "failed to create DES cipher", err)
	}

	result := make([]byte, VNCChallengeSize)
	block.Encrypt(result[:DESKeySize], challenge[:DESKeySize])
	block.Encrypt(result[DESKeySize:], challenge[DESKeySize:])
	return result, nil
}
