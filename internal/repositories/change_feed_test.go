package repositories

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeListenConn struct {
	listenErr     error
	notifications []string
	waitErr       error
	statements    []string
	closed        int
}

func (c *fakeListenConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.statements = append(c.statements, sql)
	return pgconn.CommandTag{}, c.listenErr
}

func (c *fakeListenConn) WaitForNotification(context.Context) (*pgconn.Notification, error) {
	if len(c.notifications) == 0 {
		return nil, c.waitErr
	}
	payload := c.notifications[0]
	c.notifications = c.notifications[1:]
	return &pgconn.Notification{Channel: "comment_changes", Payload: payload}, nil
}

func (c *fakeListenConn) Close(context.Context) error {
	c.closed++
	return nil
}

type recordingSink struct {
	projects []string
}

func (s *recordingSink) Publish(_ context.Context, projectID string) {
	s.projects = append(s.projects, projectID)
}

func TestChangeFeedServeClosesSessionOnEveryExit(t *testing.T) {
	cases := map[string]*fakeListenConn{
		"connection lost":  {notifications: []string{"p1", "", "p2"}, waitErr: errors.New("unexpected EOF")},
		"context canceled": {notifications: []string{"p1"}, waitErr: context.Canceled},
		"listen refused":   {listenErr: errors.New("permission denied")},
	}

	for name, conn := range cases {
		t.Run(name, func(t *testing.T) {
			feed := NewPostgresChangeFeed(nil, "comment_changes")
			sink := &recordingSink{}
			connected := false

			err := feed.serve(context.Background(), conn, sink, func() { connected = true })
			if err == nil {
				t.Fatal("expected serve to return an error")
			}
			if conn.closed != 1 {
				t.Fatalf("expected session closed once, got %d", conn.closed)
			}
			if len(conn.statements) != 1 || !strings.HasPrefix(conn.statements[0], "LISTEN ") {
				t.Fatalf("unexpected statements %v", conn.statements)
			}

			if conn.listenErr != nil {
				if connected || len(sink.projects) != 0 {
					t.Fatalf("expected nothing delivered before LISTEN succeeded, got %v", sink.projects)
				}
				return
			}
			if !connected {
				t.Fatal("expected connected callback after LISTEN")
			}
			if sink.projects[0] != "p1" {
				t.Fatalf("unexpected deliveries %v", sink.projects)
			}
		})
	}
}

func TestChangeFeedServeSkipsEmptyPayloads(t *testing.T) {
	conn := &fakeListenConn{notifications: []string{"", "p1", ""}, waitErr: errors.New("closed")}
	sink := &recordingSink{}

	err := NewPostgresChangeFeed(nil, "comment_changes").serve(context.Background(), conn, sink, func() {})
	if err == nil || !strings.Contains(err.Error(), "wait for notification") {
		t.Fatalf("expected wrapped wait error, got %v", err)
	}
	if len(sink.projects) != 1 || sink.projects[0] != "p1" {
		t.Fatalf("unexpected deliveries %v", sink.projects)
	}
}
