package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/segmentio/kafka-go"
	flag "github.com/spf13/pflag"
)

type command func(ctx context.Context, c *client, args []string, w io.Writer) error

var commands = map[string]command{
	"login":        cmdLogin,
	"logout":       cmdLogout,
	"packages":     cmdPackages,
	"package":      cmdPackage,
	"register":     cmdRegister,
	"pickup":       cmdPickup,
	"rm":           cmdRemove,
	"actors":       cmdActors,
	"actor":        cmdActor,
	"add-actor":    cmdAddActor,
	"update-actor": cmdUpdateActor,
	"search":       cmdSearch,
	"history":      cmdHistory,
}

type message struct {
	Message string `json:"message"`
}

type packageRow struct {
	ID             string `json:"id"`
	Unit           string `json:"unit"`
	OwnerName      string `json:"ownerName"`
	DoorkeeperName string `json:"doorkeeperName"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	EnteredAt      string `json:"enteredAt"`
}

// ------- validators -------

func parseID(s string) (string, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("need a valid --id: %w", err)
	}
	return id.String(), nil
}

// changed returns a pointer to v only when the flag was set explicitly.
func changed(fs *flag.FlagSet, name string, v string) *string {
	if !fs.Changed(name) {
		return nil
	}
	return &v
}

func idFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "uuid")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return parseID(*id)
}

func statusQuery(path, status string) string {
	if status == "" {
		return path
	}
	return path + "?status=" + url.QueryEscape(status)
}

// ------- commands -------

func cmdLogin(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.StringP("email", "e", "", "email")
	secret := fs.StringP("secret", "p", "", "secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *secret == "" {
		return errors.New("need -e and -p")
	}

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
		Actor     struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"actor"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": *email, "secret": *secret}, &resp); err != nil {
		return err
	}
	if err := saveToken(resp.Token, resp.ExpiresAt); err != nil {
		return err
	}
	fmt.Fprintf(w, "ok: %s (%s)\n", resp.Actor.Name, resp.Actor.Role)
	return nil
}

func cmdLogout(ctx context.Context, c *client, _ []string, w io.Writer) error {
	var m message
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, &m); err != nil {
		return err
	}
	if err := dropToken(); err != nil {
		return err
	}
	fmt.Fprintln(w, m.Message)
	return nil
}

func cmdPackages(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("packages", flag.ContinueOnError)
	status := fs.StringP("status", "s", "", "status filter (Pendente, Retirada, todos)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var rows []packageRow
	if err := c.do(ctx, http.MethodGet, statusQuery("/packages", *status), nil, &rows); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUNIT\tOWNER\tDOORKEEPER\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Unit, r.OwnerName, r.DoorkeeperName, r.Description)
	}
	return tw.Flush()
}

func cmdPackage(ctx context.Context, c *client, args []string, w io.Writer) error {
	id, err := idFlag("package", args)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/packages/"+id, nil, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdRegister(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	owner := fs.String("owner", "", "resident uuid")
	desc := fs.StringP("desc", "d", "", "description")
	unit := fs.String("unit", "", "unit (defaults to the resident's)")
	tracking := fs.String("tracking", "", "tracking code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ownerID, err := parseID(*owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if strings.TrimSpace(*desc) == "" {
		return errors.New("need -d")
	}
	req := map[string]any{
		"ownerId":      ownerID,
		"description":  *desc,
		"unit":         *unit,
		"trackingCode": changed(fs, "tracking", *tracking),
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/packages", req, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdPickup(ctx context.Context, c *client, args []string, w io.Writer) error {
	id, err := idFlag("pickup", args)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPut, "/packages/"+id+"/pickup", nil, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdRemove(ctx context.Context, c *client, args []string, w io.Writer) error {
	id, err := idFlag("rm", args)
	if err != nil {
		return err
	}
	var m message
	if err := c.do(ctx, http.MethodDelete, "/packages/"+id, nil, &m); err != nil {
		return err
	}
	fmt.Fprintln(w, m.Message)
	return nil
}

func cmdActors(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("actors", flag.ContinueOnError)
	status := fs.StringP("status", "s", "", "status filter (Ativo, Inativo, todos)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, statusQuery("/actors", *status), nil, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdActor(ctx context.Context, c *client, args []string, w io.Writer) error {
	id, err := idFlag("actor", args)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/actors/"+id, nil, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdAddActor(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("add-actor", flag.ContinueOnError)
	name := fs.StringP("name", "n", "", "name")
	email := fs.StringP("email", "e", "", "email")
	secret := fs.StringP("secret", "p", "", "secret")
	role := fs.StringP("role", "r", "", "Morador | Porteiro | Sindico")
	unit := fs.String("unit", "", "unit (residents)")
	phone := fs.String("phone", "", "phone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *email == "" || *secret == "" || *role == "" {
		return errors.New("need -n, -e, -p and -r")
	}
	req := map[string]any{
		"name":   *name,
		"email":  *email,
		"secret": *secret,
		"role":   *role,
		"unit":   changed(fs, "unit", *unit),
		"phone":  changed(fs, "phone", *phone),
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/actors", req, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

func cmdUpdateActor(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("update-actor", flag.ContinueOnError)
	id := fs.String("id", "", "uuid")
	name := fs.StringP("name", "n", "", "name")
	email := fs.StringP("email", "e", "", "email")
	secret := fs.StringP("secret", "p", "", "new secret")
	unit := fs.String("unit", "", "unit")
	phone := fs.String("phone", "", "phone")
	status := fs.String("status", "", "Ativo | Inativo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	actorID, err := parseID(*id)
	if err != nil {
		return err
	}
	req := map[string]*string{}
	for k, v := range map[string]*string{
		"name":   changed(fs, "name", *name),
		"email":  changed(fs, "email", *email),
		"secret": changed(fs, "secret", *secret),
		"unit":   changed(fs, "unit", *unit),
		"phone":  changed(fs, "phone", *phone),
		"status": changed(fs, "status", *status),
	} {
		if v != nil {
			req[k] = v
		}
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPut, "/actors/"+actorID, req, &resp); err != nil {
		return err
	}
	fmt.Fprintln(w, resp.Message)
	return nil
}

func cmdSearch(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	q := fs.StringP("query", "q", "", "name fragment (2+ chars)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var out []struct {
		ID   string  `json:"id"`
		Name string  `json:"name"`
		Unit *string `json:"unit"`
	}
	if err := c.do(ctx, http.MethodGet, "/actors/search?q="+url.QueryEscape(*q), nil, &out); err != nil {
		return err
	}
	for _, a := range out {
		unit := "-"
		if a.Unit != nil {
			unit = *a.Unit
		}
		fmt.Fprintf(w, "%s  %s  (%s)\n", a.ID, a.Name, unit)
	}
	return nil
}

func cmdHistory(ctx context.Context, c *client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	mine := fs.Bool("mine", false, "only my own actions")
	id := fs.String("id", "", "single entry uuid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "/history"
	switch {
	case *id != "":
		hid, err := parseID(*id)
		if err != nil {
			return err
		}
		path += "/" + hid
	case *mine:
		path += "/mine"
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	printJSON(w, out)
	return nil
}

// cmdTail follows the history feed topic until interrupted.
func cmdTail(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	brokers := fs.StringSlice("brokers", []string{envOr("RECEBI_KAFKA_BROKERS", "localhost:9092")}, "kafka brokers")
	topic := fs.String("topic", envOr("RECEBI_KAFKA_TOPIC", "recebi.history"), "feed topic")
	group := fs.String("group", "", "consumer group (empty reads partition 0 from the start)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        *brokers,
		GroupID:        *group,
		Topic:          *topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer r.Close()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(w, formatEvent(m.Value))
	}
}

// formatEvent renders one feed message as a single line; unknown payloads pass through raw.
func formatEvent(b []byte) string {
	var ev struct {
		CreatedAt time.Time `json:"createdAt"`
		Category  string    `json:"category"`
		Action    string    `json:"action"`
	}
	if err := json.Unmarshal(b, &ev); err != nil || ev.Action == "" {
		return string(b)
	}
	return fmt.Sprintf("%s  [%s]  %s", ev.CreatedAt.Local().Format(time.DateTime), ev.Category, ev.Action)
}
