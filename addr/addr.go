// Package addr implements the absolute/relative address arithmetic used
// throughout the engine (spec §3, §4.1: component C1).
package addr

import (
	"fmt"
)

// Address is an absolute virtual address in the tracee's address space.
type Address uint64

// Word is a single ptrace peek/poke unit: one machine word on x86-64.
type Word uint64

func (a Address) String() string {
	return fmt.Sprintf("%#016x", uint64(a))
}

// Add returns a + Address(n).
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns a - b as a byte count. Both addresses are assumed to come
// from the same address space.
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

// ToRelative converts an absolute address to a module-relative offset.
// It is an error for addr to lie below base: relative offsets are only
// meaningful against the tracee's own module base (spec §3).
func ToRelative(a, base Address) (uint64, error) {
	if a < base {
		return 0, fmt.Errorf("addr: %s is below base %s", a, base)
	}
	return uint64(a - base), nil
}

// FromRelative reconstructs an absolute address from a module base and a
// relative offset. It is the exact inverse of ToRelative for any pair
// produced by it (spec §8 invariant 6: conversion idempotence).
func FromRelative(base Address, off uint64) Address {
	return base + Address(off)
}
