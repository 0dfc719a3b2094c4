package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

func TestMessagesStats_EmptyConversation(t *testing.T) {
	db := newRepoDB(t)
	st, err := MessagesStats(context.Background(), db, "nobody")
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if st.Count != 0 || st.Seen != 0 || st.LatestAt != nil || st.LatestSeen != nil {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestMessagesStats_ChangesOnAppendAndSeen(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	p := seedProfile(t, db, "+250781111111")

	m1, _ := CreateMessage(ctx, db, p.ID, domain.RoleUser, "a")
	m2, _ := CreateMessage(ctx, db, p.ID, domain.RoleUser, "b")

	st, err := MessagesStats(ctx, db, p.ID)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if st.Count != 2 || st.Seen != 0 || st.LatestAt == nil || !st.LatestAt.Equal(m2.CreatedAt) {
		t.Fatalf("unexpected stats after append: %+v", st)
	}

	at := time.Now().UTC()
	if _, err := MarkSeen(ctx, db, []string{m1.ID}, domain.RoleAdmin, "", at); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	st2, err := MessagesStats(ctx, db, p.ID)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if st2.Seen != 1 || st2.LatestSeen == nil {
		t.Fatalf("seen not reflected: %+v", st2)
	}
}
