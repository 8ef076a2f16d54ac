package airtable

import (
	"context"
	"errors"
	"strings"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/envelope"
)

// Column names of the customer/service table.
const (
	FieldName    = "Nombre"
	FieldPhone   = "Teléfono"
	FieldEmail   = "Correo"
	FieldService = "Servicio Agendado"
)

// UserService is a customer row with the service they booked.
type UserService struct {
	Name    string `json:"nombre"`
	Phone   string `json:"telefono"`
	Email   string `json:"correo"`
	Service string `json:"servicio_agendado"`
}

// Filter selects rows in ReadRecords. Empty fields are ignored.
type Filter struct {
	Name  string
	Email string
	Phone string
}

// Row is the projection ReadRecords returns.
type Row struct {
	ID      string `json:"id"`
	Name    string `json:"Nombre"`
	Email   string `json:"Correo"`
	Phone   string `json:"Teléfono"`
	Service string `json:"Servicio Agendado"`
}

// SaveUserService creates a row for u.
func (c *Client) SaveUserService(ctx context.Context, u UserService) envelope.Envelope {
	rec, err := c.CreateRecord(ctx, map[string]any{
		FieldName:    u.Name,
		FieldPhone:   u.Phone,
		FieldEmail:   u.Email,
		FieldService: u.Service,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return envelope.Fail("No se pudo guardar el usuario en la tabla de Airtable.", err)
		}
		return envelope.Fail("Ocurrió un error al guardar el usuario.", err)
	}
	if rec.ID == "" {
		return envelope.Fail("No se pudo guardar el usuario en la tabla de Airtable.", errors.New("response without record id"))
	}
	return envelope.OK("El usuario se ha guardado exitosamente.", map[string]string{
		"id":                rec.ID,
		"nombre":            u.Name,
		"telefono":          u.Phone,
		"correo":            u.Email,
		"servicio_agendado": u.Service,
	})
}

// UpdateUserByPhone patches the first row whose phone equals phone with the
// non-empty fields of u. u.Phone is ignored.
func (c *Client) UpdateUserByPhone(ctx context.Context, phone string, u UserService) envelope.Envelope {
	records, err := c.AllRecords(ctx)
	if err != nil {
		return envelope.Fail("Error al actualizar el registro.", err)
	}
	var target *Record
	for i := range records {
		if fieldString(records[i].Fields, FieldPhone) == phone {
			target = &records[i]
			break
		}
	}
	if target == nil {
		return envelope.OK("No se encontró ningún registro con el teléfono proporcionado.", nil)
	}

	fields := map[string]any{}
	if u.Name != "" {
		fields[FieldName] = u.Name
	}
	if u.Email != "" {
		fields[FieldEmail] = u.Email
	}
	if u.Service != "" {
		fields[FieldService] = u.Service
	}
	if len(fields) == 0 {
		return envelope.OK("No se proporcionaron campos para actualizar.", nil)
	}

	rec, err := c.UpdateRecord(ctx, target.ID, fields)
	if err != nil {
		return envelope.Fail("Error al actualizar el registro.", err)
	}
	return envelope.OK("El registro se actualizó exitosamente.", rec)
}

// ReadRecords matches name as a case-insensitive substring, email
// case-insensitively and phone exactly.
func (c *Client) ReadRecords(ctx context.Context, f Filter) envelope.Envelope {
	records, err := c.AllRecords(ctx)
	if err != nil {
		return envelope.Fail("Error al leer los registros.", err)
	}
	var rows []Row
	for _, r := range records {
		name := fieldString(r.Fields, FieldName)
		email := fieldString(r.Fields, FieldEmail)
		phone := fieldString(r.Fields, FieldPhone)

		if f.Name != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Email != "" && !strings.EqualFold(f.Email, email) {
			continue
		}
		if f.Phone != "" && f.Phone != phone {
			continue
		}
		rows = append(rows, Row{
			ID:      r.ID,
			Name:    name,
			Email:   email,
			Phone:   phone,
			Service: fieldString(r.Fields, FieldService),
		})
	}
	if len(rows) == 0 {
		return envelope.OK("No se encontraron registros que coincidan con los criterios de búsqueda.", nil)
	}
	return envelope.OK("Registros encontrados.", rows)
}

// DeleteByContact removes the first row matching phone or email.
func (c *Client) DeleteByContact(ctx context.Context, phone, email string) envelope.Envelope {
	if phone == "" && email == "" {
		return envelope.OK("Debe proporcionar un teléfono o un correo electrónico para borrar un registro.", nil)
	}
	records, err := c.AllRecords(ctx)
	if err != nil {
		return envelope.Fail("Error al borrar el registro.", err)
	}
	var id string
	for _, r := range records {
		if (phone != "" && fieldString(r.Fields, FieldPhone) == phone) ||
			(email != "" && fieldString(r.Fields, FieldEmail) == email) {
			id = r.ID
			break
		}
	}
	if id == "" {
		return envelope.OK("No se encontró ningún registro con los criterios proporcionados.", nil)
	}
	res, err := c.DeleteRecord(ctx, id)
	if err != nil {
		return envelope.Fail("Error al borrar el registro.", err)
	}
	return envelope.OK("El registro se eliminó exitosamente.", res)
}

func fieldString(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
