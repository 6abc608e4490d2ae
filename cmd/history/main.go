// history prints the stored conversation between two users.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ashureev/pairchat/internal/config"
	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/store"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/chat.db", "Path to the SQLite database (users, and messages for the sqlite driver)")
	driver := flag.String("driver", config.DriverSQLite, "Message store driver: sqlite or badger")
	badgerPath := flag.String("badger", "./data/messages", "Path to the Badger message store")
	a := flag.Int64("a", 0, "First user id")
	b := flag.Int64("b", 0, "Second user id")
	after := flag.Int64("after", 0, "Only show messages with a greater id")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	if *noColor {
		color.Disable()
	}

	if err := run(os.Stdout, *dbPath, *driver, *badgerPath, domain.UserID(*a), domain.UserID(*b), *after); err != nil {
		log.Fatal(err)
	}
}

func run(w io.Writer, dbPath, driver, badgerPath string, a, b domain.UserID, after int64) error {
	if !a.Valid() || !b.Valid() {
		return errors.New("both -a and -b must be positive user ids")
	}

	db, err := store.NewSQLite(dbPath, 0)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var messages store.MessageStore = db
	switch driver {
	case config.DriverSQLite:
	case config.DriverBadger:
		bs, err := store.NewBadgerMessageStore(badgerPath, 0, nil)
		if err != nil {
			return fmt.Errorf("open badger: %w", err)
		}
		defer bs.Close()
		messages = bs
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}

	ctx := context.Background()
	conv, err := messages.ReadConversation(ctx, a, b, after)
	if err != nil {
		return err
	}

	names := map[domain.UserID]string{a: a.String(), b: b.String()}
	for id := range names {
		if u, err := db.GetUser(ctx, id); err == nil {
			names[id] = u.Username
		}
	}

	title := fmt.Sprintf("Conversation %s <-> %s (%d messages)", names[a], names[b], len(conv))
	fmt.Fprintln(w, color.New(color.BgBlack, color.FgGreen).Render(title))

	render(w, conv, names)
	return nil
}

func render(w io.Writer, conv []domain.Message, names map[domain.UserID]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Time", "From", "To", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range conv {
		table.Append([]string{
			strconv.FormatInt(m.ID, 10),
			m.CreatedAt.Local().Format(time.DateTime),
			names[m.SenderID],
			names[m.ReceiverID],
			m.Text,
		})
	}
	table.Render()
}
