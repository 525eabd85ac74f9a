package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

func usage(u string) error {
	return fmt.Errorf("%w: usage: %s", common.ErrValidation, u)
}

func (a *App) fields(prompt string) (map[string]any, error) {
	return GetFields(a.reader, prompt, a.out)
}

// attachment asks for an optional file and returns its contents.
func (a *App) attachment(prompt string) ([]byte, error) {
	path, err := GetSimpleText(a.reader, prompt+" (empty for none)", a.out)
	if err != nil || path == "" {
		return nil, err
	}
	return os.ReadFile(path)
}

func (a *App) created(c models.Collection, id string) {
	a.printf("%s %s saved locally\n", strings.TrimSuffix(string(c), "s"), id)
}

func (a *App) AddVehicle(ctx context.Context, args []string) error {
	payload, err := a.fields("Enter vehicle fields (model, plate, ...)")
	if err != nil {
		return err
	}
	id, err := a.records.CreateVehicle(ctx, payload)
	if err != nil {
		return err
	}
	a.created(models.CollectionVehicles, id)
	return nil
}

func (a *App) AddTrip(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage("trip <vehicle> [user email]")
	}
	user := ""
	if len(args) > 1 {
		user = args[1]
	} else if u := a.currentUser(); u != nil {
		user = u.Email
	}
	payload, err := a.fields("Enter trip fields (origin, destination, startedAt, ...)")
	if err != nil {
		return err
	}
	id, err := a.records.CreateTrip(ctx, args[0], user, payload)
	if err != nil {
		return err
	}
	a.created(models.CollectionTrips, id)
	return nil
}

func (a *App) AddVisit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("visit <trip>")
	}
	payload, err := a.fields("Enter visit fields (place, type, arrivedAt, ...)")
	if err != nil {
		return err
	}
	id, err := a.records.CreateVisit(ctx, args[0], payload)
	if err != nil {
		return err
	}
	a.created(models.CollectionVisits, id)
	return nil
}

func (a *App) AddExpense(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("expense <trip>")
	}
	payload, err := a.fields("Enter expense fields (amount, currency, type, ...)")
	if err != nil {
		return err
	}
	data, err := a.attachment("Receipt file")
	if err != nil {
		return err
	}
	id, err := a.records.CreateExpense(ctx, args[0], data, payload)
	if err != nil {
		return err
	}
	a.created(models.CollectionExpenses, id)
	return nil
}

func (a *App) AddFueling(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("fueling <trip> [vehicle]")
	}
	vehicle := ""
	if len(args) == 2 {
		vehicle = args[1]
	}
	payload, err := a.fields("Enter fueling fields (liters, price, odometer, ...)")
	if err != nil {
		return err
	}
	data, err := a.attachment("Photo file")
	if err != nil {
		return err
	}
	id, err := a.records.CreateFueling(ctx, args[0], vehicle, data, payload)
	if err != nil {
		return err
	}
	a.created(models.CollectionFuelings, id)
	return nil
}

func (a *App) AddType(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("type <visit|expense> <name>")
	}
	var kind string
	switch args[0] {
	case "visit":
		kind = models.KindVisitType
	case "expense":
		kind = models.KindExpenseType
	default:
		return usage("type <visit|expense> <name>")
	}
	id, err := a.records.CreateTaxonomyEntry(ctx, kind, strings.Join(args[1:], " "), nil)
	if err != nil {
		return err
	}
	a.created(models.CollectionTaxonomy, id)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage("list <collection> [trip]")
	}
	c, err := models.ParseCollection(args[0])
	if err != nil {
		return err
	}
	if c == models.CollectionUsers {
		return a.listUsers(ctx)
	}

	var recs []*models.Record
	if len(args) > 1 && c.IsTripChild() {
		recs, err = a.records.ListChildren(ctx, c, args[1])
	} else {
		recs, err = a.records.List(ctx, c)
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tREMOTE\tSUMMARY")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.LocalID, r.State, r.RemoteID, summarize(r))
	}
	return tw.Flush()
}

// summarize renders the record as a one-line "k=v" list.
func summarize(r *models.Record) string {
	var parts []string
	if r.Name != "" {
		parts = append(parts, "name="+r.Name)
	}
	for _, ref := range []struct{ k, v string }{{"vehicle", r.VehicleRef}, {"trip", r.TripRef}, {"user", r.UserRef}} {
		if ref.v != "" {
			parts = append(parts, ref.k+"="+ref.v)
		}
	}
	keys := make([]string, 0, len(r.Payload))
	for k := range r.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r.Payload[k]))
	}
	return strings.Join(parts, " ")
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("show <collection> <id>")
	}
	c, err := models.ParseCollection(args[0])
	if err != nil {
		return err
	}
	if c == models.CollectionUsers {
		return a.showUser(ctx, args[1])
	}
	r, err := a.records.Get(ctx, c, args[1])
	if err != nil {
		return err
	}

	view := map[string]any{
		"localId":  r.LocalID,
		"remoteId": r.RemoteID,
		"state":    r.State,
		"revision": r.Revision,
		"payload":  r.Payload,
	}
	for k, v := range map[string]string{
		"vehicleRef": r.VehicleRef, "tripRef": r.TripRef, "userRef": r.UserRef,
		"name": r.Name, "kind": r.Kind, "attachmentUrl": r.AttachmentURL,
		"lastError": r.LastError,
	} {
		if v != "" {
			view[k] = v
		}
	}
	if len(r.AttachmentData) > 0 {
		view["attachmentPending"] = len(r.AttachmentData)
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	a.println(string(b))
	return nil
}

// Edit merges the entered fields into the record. Reference fields
// (tripRef, vehicleRef, userRef, name) are taken out of the payload.
// Attachment collections additionally ask for a new file or "-" to remove.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("edit <collection> <id>")
	}
	c, err := models.ParseCollection(args[0])
	if err != nil {
		return err
	}
	if c == models.CollectionUsers {
		return a.editUser(ctx, args[1])
	}

	payload, err := a.fields("Enter changed fields, empty value removes a field")
	if err != nil {
		return err
	}
	p := services.Patch{Payload: payload}
	for key, dst := range map[string]**string{
		"tripRef": &p.TripRef, "vehicleRef": &p.VehicleRef, "userRef": &p.UserRef, "name": &p.Name,
	} {
		v, ok := payload[key]
		if !ok {
			continue
		}
		delete(payload, key)
		s := ""
		if v != nil {
			s = fmt.Sprint(v)
		}
		*dst = &s
	}

	if c.HasAttachment() {
		path, err := GetSimpleText(a.reader, "New attachment file (empty keeps, - removes)", a.out)
		if err != nil {
			return err
		}
		switch path {
		case "":
		case "-":
			p.Attachment = services.AttachmentRemove
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			p.Attachment = services.AttachmentReplace
			p.AttachmentData = data
		}
	}

	if err := a.records.Update(ctx, c, args[1], p); err != nil {
		return err
	}
	a.println("updated", args[1])
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("delete <collection> <id>")
	}
	c, err := models.ParseCollection(args[0])
	if err != nil {
		return err
	}
	if c == models.CollectionUsers {
		if err := a.users.SoftDelete(ctx, args[1]); err != nil {
			return err
		}
		if u := a.currentUser(); u != nil && u.Email == common.NormalizeEmail(args[1]) {
			a.setCurrent(nil)
		}
	} else if err := a.records.SoftDelete(ctx, c, args[1]); err != nil {
		return err
	}
	a.println("deleted", args[1])
	return nil
}
