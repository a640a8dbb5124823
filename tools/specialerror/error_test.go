package specialerror

import (
	"fmt"
	"testing"

	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestErrCode(t *testing.T) {
	ce, ok := ErrCode(errs.ErrArgs.WrapMsg("chatId is required"))
	assert.True(t, ok)
	assert.Equal(t, errs.ArgsError, ce.Code)

	ce, ok = ErrCode(fmt.Errorf("load friendship: %w", pgx.ErrNoRows))
	assert.True(t, ok)
	assert.Equal(t, errs.NotFound, ce.Code)

	ce, ok = ErrCode(errs.Wrap(mongo.ErrNoDocuments))
	assert.True(t, ok)
	assert.Equal(t, errs.NotFound, ce.Code)

	_, ok = ErrCode(errs.New("boom"))
	assert.False(t, ok)
	_, ok = ErrCode(nil)
	assert.False(t, ok)
}

func TestAddNilHandler(t *testing.T) {
	assert.Error(t, AddErrHandler(nil))
}
