package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/envelope"
)

// Text decodes a JSON string, number or boolean into its text form. null,
// false and numeric zero decode to "" so they read as absent.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case bytes.Equal(b, []byte("true")):
		*t = "true"
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		if f, err := n.Float64(); err == nil && f == 0 {
			*t = ""
			return nil
		}
		*t = Text(n.String())
	}
	return nil
}

// Customer is the profile the caller attaches to a turn.
type Customer struct {
	FullName    Text `json:"nombre_completo,omitempty"`
	MobilePhone Text `json:"telefono_movil,omitempty"`
	Email       Text `json:"correo_electronico,omitempty"`
	Address     Text `json:"domicilio,omitempty"`
	BirthDate   Text `json:"fecha_nacimiento,omitempty"`
	Age         Text `json:"edad,omitempty"`
	Sex         Text `json:"sexo,omitempty"`
	ClientID    Text `json:"id_cliente,omitempty"`
	Thread      Text `json:"hilo_conversacion,omitempty"`
}

const (
	profileHeader       = "Estos son tus datos registrados:\n"
	profileInsufficient = "No se encontraron datos suficientes del cliente para mostrar."
)

// DescribeCustomer renders the profile for the customer to read. A profile
// without name, phone and e-mail is reported as insufficient.
func DescribeCustomer(c Customer) envelope.Envelope {
	if c.FullName == "" && c.MobilePhone == "" && c.Email == "" {
		return envelope.WithStatus(envelope.StatusError, profileInsufficient)
	}
	fields := []struct {
		label string
		value Text
	}{
		{"Nombre", c.FullName},
		{"Teléfono", c.MobilePhone},
		{"Correo", c.Email},
		{"Domicilio", c.Address},
		{"Fecha de Nacimiento", c.BirthDate},
		{"Edad", c.Age},
		{"Sexo", c.Sex},
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value != "" {
			lines = append(lines, "- "+f.label+": "+string(f.value))
		}
	}
	return envelope.WithStatus(envelope.StatusSuccess, profileHeader+strings.Join(lines, "\n"))
}

// protected keys are never written back to the customer row
var protected = map[string]bool{"id_cliente": true, "hilo_conversacion": true}

// UpdateFields splits an assistant-supplied profile into the row id and the
// fields worth writing: protected keys and empty values are dropped.
func UpdateFields(profile map[string]any) (string, map[string]any) {
	id := scalarString(profile["id_cliente"])
	fields := make(map[string]any, len(profile))
	for k, v := range profile {
		if protected[k] || empty(v) {
			continue
		}
		fields[k] = v
	}
	return id, fields
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%v", x)
	case json.Number:
		return x.String()
	}
	return ""
}
