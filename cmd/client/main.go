package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"main/internal/api"
	"main/internal/notify"
	"main/internal/ops"
	"main/internal/realtime"
	"main/internal/session"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

func main() {
	configPath := flag.String("config", "client.json", "Path to JSON config")
	email := flag.String("email", "", "Login email (required on first run)")
	password := flag.String("password", "", "Login password")
	logout := flag.Bool("logout", false, "Log out, clear the stored session and exit")
	flag.Parse()

	cfg, err := ops.LoadClient(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore(cfg.SessionFile)
	apiClient := api.NewClient(cfg.APIBase, nil)

	if *logout {
		if err := runLogout(ctx, apiClient, store); err != nil {
			log.Fatalf("logout: %v", err)
		}
		return
	}

	sess, err := resolveSession(ctx, apiClient, store, *email, *password)
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	bus := notify.NewBus(0)
	defer bus.Close()
	go watchBroadcasts(ctx, bus)

	client := realtime.NewClient(realtime.Config{
		BaseURL: cfg.WSBase,
		Session: sess,
		Notifier: notify.NotifierFunc(func(message string, severity notify.Severity) {
			fmt.Printf("[%s] %s\n", severity, message)
		}),
		Broadcaster: bus,
		View:        &timetableView{api: apiClient, bus: bus, sess: sess},
		Retry:       cfg.Retry,
	})

	client.Connect(ctx)
	logs.Infof("watching %s as %s:%s", client.Endpoint(), sess.SubjectType, sess.SubjectID)

	<-ctx.Done()
	client.Close()
}

func runLogout(ctx context.Context, apiClient *api.Client, store *session.Store) error {
	sess, err := store.Load()
	if err == session.ErrNoSession {
		return nil
	}
	if err != nil {
		return err
	}
	if err := apiClient.Logout(ctx, sess); err != nil {
		logs.Warnf("server logout, err: %+v", err)
	}
	return store.Clear()
}

// resolveSession reuses the stored session when present, otherwise logs in
// with the provided credentials and stores the result.
func resolveSession(ctx context.Context, apiClient *api.Client, store *session.Store, email, password string) (session.Session, error) {
	sess, err := store.Load()
	if err == nil && sess.Valid() {
		return sess, nil
	}
	if err != nil && err != session.ErrNoSession {
		return session.Session{}, err
	}

	if email == "" || password == "" {
		return session.Session{}, fmt.Errorf("no stored session, pass -email and -password")
	}
	sess, err = apiClient.Login(ctx, email, password)
	if err != nil {
		return session.Session{}, err
	}
	if err := store.Save(sess); err != nil {
		logs.Warnf("persist session, err: %+v", err)
	}
	return sess, nil
}

// watchBroadcasts prints the locally rebroadcast events other parts of a
// frontend would consume.
func watchBroadcasts(ctx context.Context, bus *notify.Bus) {
	progress, cancelProgress := bus.Subscribe(notify.SignalOptimizationProgress)
	defer cancelProgress()
	complete, cancelComplete := bus.Subscribe(notify.SignalGenerationComplete)
	defer cancelComplete()
	reload, cancelReload := bus.Subscribe(notify.SignalTimetableReload)
	defer cancelReload()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-progress:
			fmt.Printf("progress> %s\n", b.Payload)
		case b := <-complete:
			fmt.Printf("generation> %s\n", b.Payload)
		case b := <-reload:
			fmt.Printf("timetable> %s\n", summarizeTimetable(b.Payload))
		}
	}
}

// timetableView is the terminal stand-in for an open timetable screen: it is
// always active, and a reload refetches the document and republishes it.
type timetableView struct {
	api  *api.Client
	bus  *notify.Bus
	sess session.Session
}

func (v *timetableView) TimetableActive() bool { return true }

func (v *timetableView) ReloadTimetable() {
	doc, err := v.api.FetchTimetable(context.Background(), v.sess)
	if err != nil {
		logs.Warnf("refetch timetable, err: %+v", err)
		return
	}
	v.bus.Publish(notify.SignalTimetableReload, doc)
}

func summarizeTimetable(doc []byte) string {
	var parsed map[string]any
	if err := sonic.ConfigFastest.Unmarshal(doc, &parsed); err != nil {
		return fmt.Sprintf("%d bytes", len(doc))
	}
	return fmt.Sprintf("%d bytes, %d top-level keys", len(doc), len(parsed))
}
