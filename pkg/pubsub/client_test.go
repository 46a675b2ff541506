package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
)

func TestResourceNames(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"bare topic", topicResourceName("proj", "orders"), "projects/proj/topics/orders"},
		{"full topic", topicResourceName("proj", "projects/other/topics/orders"), "projects/other/topics/orders"},
		{"trimmed topic", topicResourceName("proj", " orders "), "projects/proj/topics/orders"},
		{"empty name", topicResourceName("proj", ""), ""},
		{"missing project", topicResourceName("", "orders"), ""},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, tc.got)
		}
	}
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "orders"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "proj"}, config.PubSubConfig{}, nil); err != errTopicRequired {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected no options, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/creds.json"}); len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatal("expected nil handles from nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on nil client to fail")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}
