package model

import (
	"fmt"
	"strings"
)

// Kind is the closed set of declaration kinds the analyzer reports.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindContract
	KindInterface
	KindLibrary
	KindFunction
	KindModifier
	KindStateVariable
	KindLocalVariable
	KindEvent
	KindStruct
	KindEnum
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindContract:      "contract",
	KindInterface:     "interface",
	KindLibrary:       "library",
	KindFunction:      "function",
	KindModifier:      "modifier",
	KindStateVariable: "state_variable",
	KindLocalVariable: "local_variable",
	KindEvent:         "event",
	KindStruct:        "struct",
	KindEnum:          "enum",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps an analyzer kind name to a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if k != int(KindUnknown) && name == s {
			return Kind(k), nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown symbol kind %q", s)
}

// IsContractLike reports whether symbols of this kind take part in inheritance.
func (k Kind) IsContractLike() bool {
	switch k {
	case KindContract, KindInterface, KindLibrary:
		return true
	case KindUnknown, KindFunction, KindModifier, KindStateVariable,
		KindLocalVariable, KindEvent, KindStruct, KindEnum:
		return false
	}
	return false
}

// IsCallable reports whether symbols of this kind can appear as call graph nodes.
func (k Kind) IsCallable() bool {
	switch k {
	case KindFunction, KindModifier:
		return true
	case KindUnknown, KindContract, KindInterface, KindLibrary,
		KindStateVariable, KindLocalVariable, KindEvent, KindStruct, KindEnum:
		return false
	}
	return false
}

// IsType reports whether the kind declares a type.
func (k Kind) IsType() bool {
	switch k {
	case KindContract, KindInterface, KindLibrary, KindStruct, KindEnum:
		return true
	case KindUnknown, KindFunction, KindModifier, KindStateVariable,
		KindLocalVariable, KindEvent:
		return false
	}
	return false
}

// IsVariable reports whether the kind declares storage or a local.
func (k Kind) IsVariable() bool {
	return k == KindStateVariable || k == KindLocalVariable
}

// RefKind tags a use-site.
type RefKind uint8

const (
	RefRead RefKind = iota
	RefWrite
	RefCall
	RefInherits
	RefOverrides
)

var refKindNames = [...]string{
	RefRead:      "read",
	RefWrite:     "write",
	RefCall:      "call",
	RefInherits:  "inherits",
	RefOverrides: "overrides",
}

func (k RefKind) String() string {
	if int(k) < len(refKindNames) {
		return refKindNames[k]
	}
	return fmt.Sprintf("refkind(%d)", uint8(k))
}

// ParseRefKind maps an analyzer reference tag to a RefKind.
func ParseRefKind(s string) (RefKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range refKindNames {
		if name == s {
			return RefKind(k), nil
		}
	}
	return RefRead, fmt.Errorf("unknown reference kind %q", s)
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// MarshalText renders the reference kind by name.
func (k RefKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
