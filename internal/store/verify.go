package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// fingerprintDomain separates label fingerprints from any other BLAKE2b use.
const fingerprintDomain = "devtype/label/v1"

// Fingerprint computes the label fingerprint of a line:
// H(domain || key || predicted || has_truth || truth), every string length-prefixed.
func Fingerprint(k Key, predicted string, truth *string) [32]byte {
	h, _ := blake2b.New256(nil)

	writeString(h, fingerprintDomain)
	writeString(h, k.Manuscript)
	writeString(h, k.Page)

	var lineBuf [8]byte
	binary.BigEndian.PutUint64(lineBuf[:], uint64(k.Line))
	h.Write(lineBuf[:])

	writeString(h, predicted)
	if truth != nil {
		h.Write([]byte{1})
		writeString(h, *truth)
	} else {
		h.Write([]byte{0})
	}

	var result [32]byte
	copy(result[:], h.Sum(nil))
	return result
}

func writeString(w interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.Write(lenBuf[:])
	w.Write([]byte(s))
}

// VerifyAnnotation checks a loaded annotation against its stored fingerprint.
func VerifyAnnotation(a *Annotation) error {
	computed := Fingerprint(a.Key, a.Predicted, a.GroundTruth)
	if !bytes.Equal(computed[:], a.Fingerprint[:]) {
		return fmt.Errorf("fingerprint mismatch for %s: computed %x, stored %x",
			a.Key, computed, a.Fingerprint)
	}
	return nil
}

// VerifyLabels recomputes the fingerprint of every annotation in a
// manuscript (or the whole store when manuscript is empty) and returns the
// keys whose labels no longer match.
func (s *Store) VerifyLabels(manuscript string) ([]Key, error) {
	list, err := s.ListManuscript(manuscript)
	if err != nil {
		return nil, err
	}

	var corrupted []Key
	for i := range list {
		if err := VerifyAnnotation(&list[i]); err != nil {
			corrupted = append(corrupted, list[i].Key)
		}
	}
	return corrupted, nil
}
