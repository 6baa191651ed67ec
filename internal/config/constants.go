package config

// FixtureFileExt is the canonical-module fixture extension the driver
// accepts.
const FixtureFileExt = ".yaml"

// FixtureFileExtensions are all recognized fixture file extensions.
var FixtureFileExtensions = []string{".yaml", ".yml"}

// Default file names the driver looks for next to a module.
const (
	DeriveConfigFileName = "derive.yaml"
	CacheFileName        = "tern.db"
)

// Built-in ability and member names
const (
	EqAbilityName      = "Eq"
	HashAbilityName    = "Hash"
	DefaultAbilityName = "Default"
	IsEqMemberName     = "isEq"
	HashMemberName     = "hash"
	DefaultMemberName  = "default"
)

// Built-in type names
const (
	ListTypeName = "List"
	StrTypeName  = "Str"
	BoolTypeName = "Bool"
)

// Numeric width names, in the order reports list them.
var NumericWidthNames = []string{
	"U8", "U16", "U32", "U64", "U128",
	"I8", "I16", "I32", "I64", "I128",
	"Nat", "F32", "F64", "Dec",
}
