package connect

import (
	"encoding/json"
	"fmt"
)

func NewSecretString(value string) SecretString {
	return SecretString{value}
}

// SecretString holds a secret in a way that keeps it out of logs and
// of marshaled output.
type SecretString struct {
	value string
}

func (s SecretString) String() string {
	return "*****"
}

func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &s.value); err != nil {
		return fmt.Errorf("unable to unmarshal secret: %w", err)
	}
	return nil
}

func (s *SecretString) UnmarshalYAML(unmarshal func(any) error) error {
	if err := unmarshal(&s.value); err != nil {
		return fmt.Errorf("unable to unmarshal secret: %w", err)
	}
	return nil
}

func (s SecretString) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
