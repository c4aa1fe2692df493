package stage

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Field tags keep absent and empty values distinct in the digest.
const (
	tagAbsent  = 0
	tagPresent = 1
)

// Checksum computes the stage digest over the command, the normalized working
// directory, and the ordered dependency and output entries. The stored MD5 is
// never part of its own input.
//
// Every field is written with an 8-byte big-endian length prefix.
func Checksum(s *Stage) string {
	c := s.Clone()
	Normalize(c)

	h := md5.New()

	writeOptional(h, c.Cmd)
	writeField(h, []byte(c.Wdir))

	writeCount(h, len(c.Deps))
	for _, d := range c.Deps {
		writeField(h, []byte(d.Path))
		writeOptional(h, d.Checksum)
	}

	writeCount(h, len(c.Outs))
	for _, o := range c.Outs {
		writeField(h, []byte(o.Path))
		writeOptional(h, o.Checksum)
		if o.Cache {
			writeField(h, []byte{tagPresent})
		} else {
			writeField(h, []byte{tagAbsent})
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

func writeOptional(h hash.Hash, v *string) {
	if v == nil {
		writeField(h, []byte{tagAbsent})
		return
	}
	writeField(h, []byte{tagPresent})
	writeField(h, []byte(*v))
}

func writeCount(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	writeField(h, buf[:])
}
