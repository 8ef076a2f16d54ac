package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/airtable"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/calendar"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/docs"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/envelope"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/gmail"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/whatsapp"
)

type Tabular interface {
	UpdateRecord(ctx context.Context, recordID string, fields map[string]any) (*airtable.Record, error)
	SaveUserService(ctx context.Context, u airtable.UserService) envelope.Envelope
	UpdateUserByPhone(ctx context.Context, phone string, u airtable.UserService) envelope.Envelope
	ReadRecords(ctx context.Context, f airtable.Filter) envelope.Envelope
	DeleteByContact(ctx context.Context, phone, email string) envelope.Envelope
}

type Calendar interface {
	CreateEvent(ctx context.Context, title, start string) (envelope.Envelope, error)
	ListUpcoming(ctx context.Context, max int64) ([]calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID, userName, newDate string) envelope.Envelope
	UpdateByDetails(ctx context.Context, title, start string, upd calendar.EventUpdate) envelope.Envelope
	DeleteByDetails(ctx context.Context, title, start string) envelope.Envelope
	GetAppointments(ctx context.Context, userName, service string, futureOnly bool) envelope.Envelope
	CancelAppointment(ctx context.Context, userName, at, reason string) envelope.Envelope
}

type Mailer interface {
	ListMessages(ctx context.Context, query string, max int64) ([]gmail.Summary, error)
	GetMessage(ctx context.Context, id string) (*gmail.Detail, error)
	SendMessage(ctx context.Context, to, subject, body string) (*gmail.Sent, error)
}

type Messenger interface {
	SendText(ctx context.Context, phone, text string) (*whatsapp.SendResult, error)
}

type Documents interface {
	GetDocument(ctx context.Context, id string) (*docs.Document, error)
	CreateDocument(ctx context.Context, title, content string) (*docs.Document, error)
}

// Adapters are the configured services. A nil adapter leaves its tools out
// of the table, so calls to them come back as not implemented.
type Adapters struct {
	Tabular   Tabular
	Calendar  Calendar
	Mailer    Mailer
	Messenger Messenger
	Documents Documents
}

// NewTable registers every tool whose adapter is present.
func NewTable(a Adapters) *Table {
	t := newTable()
	registerCustomerTools(t, a.Tabular)
	if a.Tabular != nil {
		registerTableTools(t, a.Tabular)
	}
	if a.Calendar != nil {
		registerCalendarTools(t, a.Calendar)
	}
	if a.Mailer != nil {
		registerMailTools(t, a.Mailer)
	}
	if a.Messenger != nil {
		registerMessagingTools(t, a.Messenger)
	}
	if a.Documents != nil {
		registerDocumentTools(t, a.Documents)
	}
	return t
}

var errMissingClientID = errors.New("id_cliente es requerido para actualizar al cliente")

type describeArgs struct {
	Intent string `json:"intencion_cliente"`
}

type updateCustomerArgs struct {
	Customer map[string]any `json:"customer"`
}

func registerCustomerTools(t *Table, tab Tabular) {
	t.mustRegister(Definition{
		Name:        "consultar_cliente",
		Description: "Muestra al cliente los datos que tiene registrados.",
		Parameters: object(nil, map[string]any{
			"intencion_cliente": str("Qué quiere hacer el cliente con sus datos"),
		}),
	}, typed(func(_ context.Context, _ describeArgs, c Customer) (any, error) {
		return DescribeCustomer(c), nil
	}))

	if tab == nil {
		return
	}
	t.mustRegister(Definition{
		Name:        "actualizar_cliente",
		Description: "Actualiza en Airtable los datos del cliente que hayan cambiado.",
		Parameters: object([]string{"customer"}, map[string]any{
			"customer": map[string]any{
				"type":        "object",
				"description": "Perfil del cliente con id_cliente y los campos a actualizar",
				"properties": map[string]any{
					"id_cliente":         profileField("Identificador del registro en Airtable"),
					"nombre_completo":    profileField("Nombre completo"),
					"telefono_movil":     profileField("Teléfono móvil"),
					"correo_electronico": profileField("Correo electrónico"),
					"domicilio":          profileField("Domicilio"),
					"fecha_nacimiento":   profileField("Fecha de nacimiento"),
					"sexo":               profileField("Sexo"),
				},
			},
		}),
	}, typed(func(ctx context.Context, args updateCustomerArgs, c Customer) (any, error) {
		id, fields := UpdateFields(args.Customer)
		if id == "" {
			id = string(c.ClientID)
		}
		if id == "" {
			return nil, errMissingClientID
		}
		if len(fields) == 0 {
			return envelope.OK("No se proporcionaron campos para actualizar.", nil), nil
		}
		return tab.UpdateRecord(ctx, id, fields)
	}))
}

type saveUserArgs struct {
	Name    string `json:"nombre"`
	Phone   string `json:"telefono"`
	Email   string `json:"correo"`
	Service string `json:"servicio_agendado"`
}

type updateUserArgs struct {
	Phone   string `json:"telefono"`
	Name    string `json:"nombre"`
	Email   string `json:"email"`
	Service string `json:"servicio_agendado"`
}

type readRecordsArgs struct {
	Name  string `json:"nombre"`
	Email string `json:"email"`
	Phone string `json:"telefono"`
}

type deleteRecordArgs struct {
	Phone string `json:"telefono"`
	Email string `json:"email"`
}

func registerTableTools(t *Table, tab Tabular) {
	t.mustRegister(Definition{
		Name:        "guardar_usuario_servicio",
		Description: "Guarda un cliente junto con el servicio que agendó.",
		Parameters: object([]string{"nombre", "telefono", "correo", "servicio_agendado"}, map[string]any{
			"nombre":            str("Nombre del cliente"),
			"telefono":          str("Teléfono del cliente"),
			"correo":            str("Correo electrónico del cliente"),
			"servicio_agendado": str("Servicio agendado"),
		}),
	}, typed(func(ctx context.Context, a saveUserArgs, _ Customer) (any, error) {
		return tab.SaveUserService(ctx, airtable.UserService{Name: a.Name, Phone: a.Phone, Email: a.Email, Service: a.Service}), nil
	}))

	t.mustRegister(Definition{
		Name:        "actualizar_usuario",
		Description: "Actualiza nombre, correo o servicio del registro con el teléfono indicado.",
		Parameters: object([]string{"telefono"}, map[string]any{
			"telefono":          str("Teléfono que identifica el registro"),
			"nombre":            str("Nuevo nombre"),
			"email":             str("Nuevo correo electrónico"),
			"servicio_agendado": str("Nuevo servicio agendado"),
		}),
	}, typed(func(ctx context.Context, a updateUserArgs, _ Customer) (any, error) {
		return tab.UpdateUserByPhone(ctx, a.Phone, airtable.UserService{Name: a.Name, Email: a.Email, Service: a.Service}), nil
	}))

	t.mustRegister(Definition{
		Name:        "leer_registros",
		Description: "Busca registros por nombre, correo o teléfono.",
		Parameters: object(nil, map[string]any{
			"nombre":   str("Parte del nombre"),
			"email":    str("Correo electrónico exacto"),
			"telefono": str("Teléfono exacto"),
		}),
	}, typed(func(ctx context.Context, a readRecordsArgs, _ Customer) (any, error) {
		return tab.ReadRecords(ctx, airtable.Filter{Name: a.Name, Email: a.Email, Phone: a.Phone}), nil
	}))

	t.mustRegister(Definition{
		Name:        "borrar_registro",
		Description: "Elimina el registro con el teléfono o correo indicado.",
		Parameters: object(nil, map[string]any{
			"telefono": str("Teléfono del registro"),
			"email":    str("Correo del registro"),
		}),
	}, typed(func(ctx context.Context, a deleteRecordArgs, _ Customer) (any, error) {
		return tab.DeleteByContact(ctx, a.Phone, a.Email), nil
	}))
}

type scheduleArgs struct {
	Title string `json:"event_title"`
	Start string `json:"start_time"`
}

type appointmentsArgs struct {
	UserName   string `json:"user_name"`
	Service    string `json:"service"`
	FutureOnly bool   `json:"future_only"`
}

type rescheduleArgs struct {
	EventID  string `json:"event_id"`
	UserName string `json:"user_name"`
	NewDate  string `json:"new_date"`
}

type cancelArgs struct {
	UserName string `json:"user_name"`
	At       string `json:"appointment_datetime"`
	Reason   string `json:"reason"`
}

type updateEventArgs struct {
	Title        string `json:"event_title"`
	Start        string `json:"start_time"`
	UpdatedTitle string `json:"updated_title"`
	UpdatedStart string `json:"updated_start"`
	UpdatedEnd   string `json:"updated_end"`
}

type deleteEventArgs struct {
	Title string `json:"event_title"`
	Start string `json:"start_time"`
}

type listEventsArgs struct {
	MaxResults int64 `json:"max_results"`
}

const dateTimeHint = "Fecha y hora ISO 8601, p. ej. 2025-03-10T10:00:00"

func registerCalendarTools(t *Table, cal Calendar) {
	t.mustRegister(Definition{
		Name:        "agendar_cita",
		Description: "Agenda una cita de una hora en el calendario.",
		Parameters: object([]string{"event_title", "start_time"}, map[string]any{
			"event_title": str("Título de la cita, incluye servicio y nombre del cliente"),
			"start_time":  str(dateTimeHint),
		}),
	}, typed(func(ctx context.Context, a scheduleArgs, _ Customer) (any, error) {
		return cal.CreateEvent(ctx, a.Title, a.Start)
	}))

	t.mustRegister(Definition{
		Name:        "consultar_citas",
		Description: "Lista las citas de un cliente para un servicio.",
		Parameters: object([]string{"user_name", "service"}, map[string]any{
			"user_name":   str("Nombre del cliente"),
			"service":     str("Servicio"),
			"future_only": boolean("Solo citas futuras"),
		}),
	}, typed(func(ctx context.Context, a appointmentsArgs, _ Customer) (any, error) {
		return cal.GetAppointments(ctx, a.UserName, a.Service, a.FutureOnly), nil
	}))

	t.mustRegister(Definition{
		Name:        "reagendar_cita",
		Description: "Mueve una cita existente a una nueva fecha y hora.",
		Parameters: object([]string{"event_id", "new_date"}, map[string]any{
			"event_id":  str("Identificador de la cita (appointment_id)"),
			"user_name": str("Nombre de quien reagenda"),
			"new_date":  str(dateTimeHint),
		}),
	}, typed(func(ctx context.Context, a rescheduleArgs, _ Customer) (any, error) {
		return cal.UpdateEvent(ctx, a.EventID, a.UserName, a.NewDate), nil
	}))

	t.mustRegister(Definition{
		Name:        "cancelar_cita",
		Description: "Cancela la cita del cliente a la hora indicada.",
		Parameters: object([]string{"user_name", "appointment_datetime"}, map[string]any{
			"user_name":            str("Nombre del cliente"),
			"appointment_datetime": str(dateTimeHint),
			"reason":               str("Motivo de la cancelación"),
		}),
	}, typed(func(ctx context.Context, a cancelArgs, _ Customer) (any, error) {
		return cal.CancelAppointment(ctx, a.UserName, a.At, a.Reason), nil
	}))

	t.mustRegister(Definition{
		Name:        "actualizar_evento",
		Description: "Cambia título u horario del evento identificado por título y hora de inicio.",
		Parameters: object([]string{"event_title", "start_time"}, map[string]any{
			"event_title":   str("Título actual"),
			"start_time":    str(dateTimeHint),
			"updated_title": str("Nuevo título"),
			"updated_start": str(dateTimeHint),
			"updated_end":   str(dateTimeHint),
		}),
	}, typed(func(ctx context.Context, a updateEventArgs, _ Customer) (any, error) {
		return cal.UpdateByDetails(ctx, a.Title, a.Start, calendar.EventUpdate{
			Title: a.UpdatedTitle,
			Start: a.UpdatedStart,
			End:   a.UpdatedEnd,
		}), nil
	}))

	t.mustRegister(Definition{
		Name:        "eliminar_evento",
		Description: "Elimina el evento identificado por título y hora de inicio.",
		Parameters: object([]string{"event_title", "start_time"}, map[string]any{
			"event_title": str("Título del evento"),
			"start_time":  str(dateTimeHint),
		}),
	}, typed(func(ctx context.Context, a deleteEventArgs, _ Customer) (any, error) {
		return cal.DeleteByDetails(ctx, a.Title, a.Start), nil
	}))

	t.mustRegister(Definition{
		Name:        "listar_eventos",
		Description: "Lista los eventos de los próximos cinco días.",
		Parameters: object(nil, map[string]any{
			"max_results": integer("Máximo de eventos (10 por defecto)"),
		}),
	}, typed(func(ctx context.Context, a listEventsArgs, _ Customer) (any, error) {
		max := a.MaxResults
		if max <= 0 {
			max = 10
		}
		events, err := cal.ListUpcoming(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return envelope.OK("No hay eventos próximos.", events), nil
		}
		return envelope.OK(fmt.Sprintf("Se encontraron %d eventos.", len(events)), events), nil
	}))
}

type sendMailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type listMailArgs struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

type readMailArgs struct {
	MessageID string `json:"message_id"`
}

func registerMailTools(t *Table, m Mailer) {
	t.mustRegister(Definition{
		Name:        "enviar_correo",
		Description: "Envía un correo de texto.",
		Parameters: object([]string{"to", "subject", "body"}, map[string]any{
			"to":      str("Destinatario"),
			"subject": str("Asunto"),
			"body":    str("Cuerpo del correo"),
		}),
	}, typed(func(ctx context.Context, a sendMailArgs, _ Customer) (any, error) {
		sent, err := m.SendMessage(ctx, a.To, a.Subject, a.Body)
		if err != nil {
			return nil, err
		}
		return envelope.OK("Correo enviado exitosamente.", sent), nil
	}))

	t.mustRegister(Definition{
		Name:        "listar_correos",
		Description: "Lista correos que coinciden con una búsqueda de Gmail.",
		Parameters: object(nil, map[string]any{
			"query":       str("Búsqueda de Gmail, p. ej. is:unread"),
			"max_results": integer("Máximo de correos (10 por defecto, 50 como máximo)"),
		}),
	}, typed(func(ctx context.Context, a listMailArgs, _ Customer) (any, error) {
		msgs, err := m.ListMessages(ctx, a.Query, a.MaxResults)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return envelope.OK("No se encontraron mensajes.", msgs), nil
		}
		return envelope.OK(fmt.Sprintf("Se encontraron %d mensajes.", len(msgs)), msgs), nil
	}))

	t.mustRegister(Definition{
		Name:        "leer_correo",
		Description: "Obtiene asunto y cuerpo de un correo.",
		Parameters: object([]string{"message_id"}, map[string]any{
			"message_id": str("Identificador del mensaje"),
		}),
	}, typed(func(ctx context.Context, a readMailArgs, _ Customer) (any, error) {
		return m.GetMessage(ctx, a.MessageID)
	}))
}

type sendWhatsAppArgs struct {
	Phone   string `json:"phone_number"`
	Message string `json:"message"`
}

func registerMessagingTools(t *Table, msg Messenger) {
	t.mustRegister(Definition{
		Name:        "enviar_whatsapp",
		Description: "Envía un mensaje de WhatsApp a un número.",
		Parameters: object([]string{"phone_number", "message"}, map[string]any{
			"phone_number": str("Número con código de país, sin signos"),
			"message":      str("Texto del mensaje"),
		}),
	}, typed(func(ctx context.Context, a sendWhatsAppArgs, _ Customer) (any, error) {
		res, err := msg.SendText(ctx, a.Phone, a.Message)
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			return envelope.Fail("No se pudo enviar el mensaje de WhatsApp.",
				fmt.Errorf("status %d: %s", res.StatusCode, res.Body)), nil
		}
		return envelope.OK("Mensaje enviado.", res.Body), nil
	}))
}

type readDocArgs struct {
	DocumentID string `json:"document_id"`
}

type createDocArgs struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func registerDocumentTools(t *Table, d Documents) {
	t.mustRegister(Definition{
		Name:        "leer_documento",
		Description: "Lee el texto de un documento de Google Docs.",
		Parameters: object([]string{"document_id"}, map[string]any{
			"document_id": str("Identificador del documento"),
		}),
	}, typed(func(ctx context.Context, a readDocArgs, _ Customer) (any, error) {
		return d.GetDocument(ctx, a.DocumentID)
	}))

	t.mustRegister(Definition{
		Name:        "crear_documento",
		Description: "Crea un documento de Google Docs con el contenido dado.",
		Parameters: object([]string{"title"}, map[string]any{
			"title":   str("Título"),
			"content": str("Contenido inicial"),
		}),
	}, typed(func(ctx context.Context, a createDocArgs, _ Customer) (any, error) {
		return d.CreateDocument(ctx, a.Title, a.Content)
	}))
}
