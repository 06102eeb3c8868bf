package mysql

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/rand"
)

// scrambleNative computes the mysql_native_password response:
// SHA1(password) XOR SHA1(seed ‖ SHA1(SHA1(password))) (§4.3, §8 inv. 6).
// The empty password scrambles to an empty response.
func scrambleNative(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	pwHash := sha1Sum(password)
	pwHashHash := sha1Sum(string(pwHash))
	seeded := sha1SumBytes(concat(seed, pwHashHash))
	return xorBytes(pwHash, seeded)
}

// scrambleCachingSHA2 computes the caching_sha2_password fast-auth
// response: SHA256(password) XOR SHA256(SHA256(SHA256(password)) ‖ seed).
func scrambleCachingSHA2(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	pwHash := sha256Sum(password)
	pwHashHash := sha256Sum(string(pwHash))
	seeded := sha256SumBytes(concat(pwHashHash, seed))
	return xorBytes(pwHash, seeded)
}

func sha1Sum(s string) []byte {
	h := sha1.Sum([]byte(s))
	return h[:]
}

func sha1SumBytes(b []byte) []byte {
	h := sha1.Sum(b)
	return h[:]
}

func sha256Sum(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func sha256SumBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// xorWithSeedRepeating XORs password bytes with the seed, repeating the
// seed as needed; used for sha256_password's RSA-encrypted payload.
func xorWithSeedRepeating(password []byte, seed []byte) []byte {
	out := make([]byte, len(password))
	for i := range out {
		out[i] = password[i] ^ seed[i%len(seed)]
	}
	return out
}

// encryptPasswordRSA builds the RSA-OAEP-encrypted payload sent for
// caching_sha2_password full-auth and sha256_password: XOR(password
// with trailing NUL, seed), encrypted with the server's public key
// (§4.3 step 3, AuthMoreData branch).
func encryptPasswordRSA(password string, seed []byte, pub *rsa.PublicKey) ([]byte, error) {
	plain := append([]byte(password), 0)
	xored := xorWithSeedRepeating(plain, seed)
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, xored, nil)
}
