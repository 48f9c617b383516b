package cube

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Полное имя метода читающего сервиса куба. Клиент ходит динамическим
// Invoke со structpb-сообщениями, сгенерированные стабы не нужны.
const getCellMethod = "/cube.v1.CubeService/GetCell"

type GRPCReader struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCReader создает адаптер поверх готового соединения с кубом.
func NewGRPCReader(conn *grpc.ClientConn, timeout time.Duration) *GRPCReader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GRPCReader{conn: conn, timeout: timeout}
}

// GetCell реализует интерфейс Repository.
func (r *GRPCReader) GetCell(ctx context.Context, pov domain.POV) (float64, error) {
	// 1. Собираем запрос как protobuf Struct
	fields := map[string]interface{}{
		"scenario": pov.Scenario,
		"period":   pov.Period,
		"entity":   pov.Entity,
	}
	if pov.Account != "" {
		fields["account"] = pov.Account
	}
	if len(pov.Extra) > 0 {
		extra := make(map[string]interface{}, len(pov.Extra))
		for k, v := range pov.Extra {
			extra[k] = v
		}
		fields["extra"] = extra
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, &FetchError{POV: pov, Err: fmt.Errorf("build request: %w", err)}
	}

	// 2. Защитный таймаут на уровне вызова: внешние обертки могут иметь свой,
	// но адаптер обязан иметь собственный предел
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// 3. Динамический вызов читающего сервиса
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, getCellMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, ErrNoData
		}
		return 0, &FetchError{POV: pov, Err: fmt.Errorf("cube call failed: %w", err)}
	}

	// 4. Разбираем ответ: {status: "ok"|"nodata", value: number}
	m := resp.AsMap()
	if s, _ := m["status"].(string); s == "nodata" {
		return 0, ErrNoData
	}

	v, ok := m["value"].(float64)
	if !ok {
		return 0, &FetchError{POV: pov, Err: fmt.Errorf("cube response has no numeric value")}
	}
	return v, nil
}
