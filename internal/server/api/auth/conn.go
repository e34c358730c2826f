package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// MaxFrameSize bounds one sealed frame. Scan requests carry whole images, so
// this is well above the size of a typical photo.
const MaxFrameSize = 32 << 20

var ErrFrameTooLarge = errors.New("sealed frame too large")

// Conn seals every Write into one frame:
//
//	length uint32 BE | nonce [12] | ciphertext
//
// The nonce carries a per-direction counter; frames must arrive in order.
type Conn struct {
	net.Conn
	aead cipher.AEAD

	wmu     sync.Mutex
	sendCtr uint64

	rmu     sync.Mutex
	recvCtr uint64
	recvBuf bytes.Buffer
}

// WrapConn returns conn sealed with sessionKey.
func WrapConn(conn net.Conn, sessionKey []byte) (*Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn, aead: aead}, nil
}

func (s *Conn) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], s.sendCtr)
	s.sendCtr++

	frame := make([]byte, 4, 4+len(nonce)+len(p)+s.aead.Overhead())
	frame = append(frame, nonce...)
	frame = s.aead.Seal(frame, nonce, p, nil)
	binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)-4))

	if _, err := s.Conn.Write(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Conn) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	for s.recvBuf.Len() == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(s.Conn, hdr[:]); err != nil {
			return 0, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length > MaxFrameSize {
			return 0, ErrFrameTooLarge
		}
		if length < chacha20poly1305.NonceSize {
			return 0, io.ErrUnexpectedEOF
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(s.Conn, frame); err != nil {
			return 0, err
		}
		nonce, ct := frame[:chacha20poly1305.NonceSize], frame[chacha20poly1305.NonceSize:]
		if ctr := binary.BigEndian.Uint64(nonce[4:]); ctr != s.recvCtr {
			return 0, fmt.Errorf("sealed frame out of order: got %d, want %d", ctr, s.recvCtr)
		}
		pt, err := s.aead.Open(nil, nonce, ct, nil)
		if err != nil {
			return 0, err
		}
		s.recvCtr++
		s.recvBuf.Write(pt)
	}
	return s.recvBuf.Read(p)
}
