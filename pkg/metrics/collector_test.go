package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransfer_CountsCoinsOnlyOnSuccess(t *testing.T) {
	okBefore := testutil.ToFloat64(transfersTotal.WithLabelValues("ok"))
	failedBefore := testutil.ToFloat64(transfersTotal.WithLabelValues("insufficient_funds"))
	coinsBefore := testutil.ToFloat64(coinsTransferredTotal)

	RecordTransfer("ok", 250)
	RecordTransfer("insufficient_funds", 1000)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(transfersTotal.WithLabelValues("ok")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(transfersTotal.WithLabelValues("insufficient_funds")))
	assert.Equal(t, coinsBefore+250, testutil.ToFloat64(coinsTransferredTotal))
}

func TestRecordMembershipSync(t *testing.T) {
	addedBefore := testutil.ToFloat64(membershipChangesTotal.WithLabelValues("added"))
	removedBefore := testutil.ToFloat64(membershipChangesTotal.WithLabelValues("removed"))
	syncsBefore := testutil.ToFloat64(membershipSyncsTotal.WithLabelValues("update_roles", "ok"))

	RecordMembershipSync("update_roles", "ok", 3, 1)

	assert.Equal(t, syncsBefore+1, testutil.ToFloat64(membershipSyncsTotal.WithLabelValues("update_roles", "ok")))
	assert.Equal(t, addedBefore+3, testutil.ToFloat64(membershipChangesTotal.WithLabelValues("added")))
	assert.Equal(t, removedBefore+1, testutil.ToFloat64(membershipChangesTotal.WithLabelValues("removed")))
}

func TestRecordCommand_EmptyLabels(t *testing.T) {
	before := testutil.ToFloat64(botCommandsTotal.WithLabelValues("unknown", "unknown"))

	RecordCommand("", "", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(botCommandsTotal.WithLabelValues("unknown", "unknown")))
}
