package state

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// SidSize is the length of a node identifier (an X25519 public key)
	SidSize = 32
	// SenderPrefixSize is how much of a reporter's SID is kept on a second-hand observation
	SenderPrefixSize = 12
)

// NodeId is a subscriber id (SID), derived from the node's public key
type NodeId [SidSize]byte

// SenderPrefix is a truncated NodeId
type SenderPrefix [SenderPrefixSize]byte

// Broadcast addresses every node on the link
var Broadcast = func() NodeId {
	var id NodeId
	for i := range id {
		id[i] = 0xff
	}
	return id
}()

// IsReserved is true for addresses in the special 0x00-0x0f address space
func (n NodeId) IsReserved() bool {
	return n[0] < 0x10
}

func (n NodeId) IsBroadcast() bool {
	return n == Broadcast
}

func (n NodeId) Prefix() SenderPrefix {
	var p SenderPrefix
	copy(p[:], n[:SenderPrefixSize])
	return p
}

func (n NodeId) HasPrefix(p SenderPrefix) bool {
	return bytes.Equal(n[:SenderPrefixSize], p[:])
}

func (n NodeId) String() string {
	return hex.EncodeToString(n[:])
}

// Short is the first 8 hex digits, used as a log prefix
func (n NodeId) Short() string {
	return hex.EncodeToString(n[:4])
}

func (n NodeId) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NodeId) UnmarshalText(text []byte) error {
	return n.parse(string(text))
}

func ParseNodeId(s string) (NodeId, error) {
	var n NodeId
	err := n.parse(s)
	return n, err
}

func (n *NodeId) parse(s string) error {
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(data) != SidSize {
		return fmt.Errorf("sid must be %d bytes, got %d", SidSize, len(data))
	}
	*n = NodeId(data)
	return nil
}

func (p SenderPrefix) String() string {
	return hex.EncodeToString(p[:]) + "*"
}
