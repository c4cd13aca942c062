package core

import (
	"errors"
	"fmt"
)

var ErrUnknownColumnType = errors.New("unknown column type")

type ColumnType int

const (
	StringType ColumnType = iota
	IntType
	FloatType
	BoolType
	TextType
	DateType
	TimestampType
	JsonType
	ShortType
	LongType
	DoubleType
	DecimalType
	BinaryType
	ByteType
	DateTimeType
	LinkType
)

var columnTypeNames = map[ColumnType]string{
	StringType:    "STRING",
	IntType:       "INTEGER",
	FloatType:     "FLOAT",
	BoolType:      "BOOLEAN",
	TextType:      "TEXT",
	DateType:      "DATE",
	TimestampType: "TIMESTAMP",
	JsonType:      "JSON",
	ShortType:     "SHORT",
	LongType:      "LONG",
	DoubleType:    "DOUBLE",
	DecimalType:   "DECIMAL",
	BinaryType:    "BINARY",
	ByteType:      "BYTE",
	DateTimeType:  "DATETIME",
	LinkType:      "LINK",
}

var columnTypesByName = func() map[string]ColumnType {
	m := make(map[string]ColumnType, len(columnTypeNames))
	for t, name := range columnTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the type tag used in stored and network representations.
func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType maps a type tag back to its ColumnType. Tags are case sensitive.
func ParseColumnType(tag string) (ColumnType, error) {
	t, ok := columnTypesByName[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumnType, tag)
	}
	return t, nil
}

func (t ColumnType) MarshalText() ([]byte, error) {
	if _, ok := columnTypeNames[t]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownColumnType, int(t))
	}
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
