package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/skobkin/meshgo/internal/domain"
)

// NodeRepo implements domain.NodeRepository using SQLite.
type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func (r *NodeRepo) Upsert(ctx context.Context, n domain.Node) error {
	var (
		latitude           any
		longitude          any
		batteryLevel       any
		voltage            any
		temperature        any
		humidity           any
		pressure           any
		airQualityIndex    any
		powerVoltage       any
		powerCurrent       any
		isUnmessageable    any
		channel            any
		channelUtilization any
		airUtilTx          any
		uptimeSeconds      any
		publicKey          any
		isLicensed         any
		rebootCount        any
	)
	if n.Latitude != nil {
		latitude = *n.Latitude
	}
	if n.Longitude != nil {
		longitude = *n.Longitude
	}
	if n.BatteryLevel != nil {
		batteryLevel = int64(*n.BatteryLevel)
	}
	if n.Voltage != nil {
		voltage = *n.Voltage
	}
	if n.Temperature != nil {
		temperature = *n.Temperature
	}
	if n.Humidity != nil {
		humidity = *n.Humidity
	}
	if n.Pressure != nil {
		pressure = *n.Pressure
	}
	if n.AirQualityIndex != nil {
		airQualityIndex = *n.AirQualityIndex
	}
	if n.PowerVoltage != nil {
		powerVoltage = *n.PowerVoltage
	}
	if n.PowerCurrent != nil {
		powerCurrent = *n.PowerCurrent
	}
	if n.IsUnmessageable != nil {
		isUnmessageable = boolToInt64(*n.IsUnmessageable)
	}
	if n.Channel != nil {
		channel = int64(*n.Channel)
	}
	if n.ChannelUtilization != nil {
		channelUtilization = *n.ChannelUtilization
	}
	if n.AirUtilTx != nil {
		airUtilTx = *n.AirUtilTx
	}
	if n.Uptime != nil {
		uptimeSeconds = int64(*n.Uptime)
	}
	if len(n.PublicKey) > 0 {
		publicKey = n.PublicKey
	}
	if n.IsLicensed != nil {
		isLicensed = boolToInt64(*n.IsLicensed)
	}
	if n.RebootCount != nil {
		rebootCount = int64(*n.RebootCount)
	}
	var welcomedAt any
	if n.WelcomedAt != nil {
		welcomedAt = timeToUnixMillis(*n.WelcomedAt)
	}
	createdAt := timeToUnixMillis(n.CreatedAt)
	if n.CreatedAt.IsZero() {
		createdAt = timeToUnixMillis(n.LastHeardAt)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nodes(
			node_id, long_name, short_name, battery_level, voltage, board_model, device_role,
			last_heard_at, rssi, snr, updated_at,
			latitude, longitude, temperature, humidity, pressure, air_quality_index,
			power_voltage, power_current, is_unmessageable, channel, channel_utilization,
			air_util_tx, uptime_seconds, public_key, is_licensed, firmware_version, reboot_count,
			favorite, ignored, welcomed_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			long_name = CASE
				WHEN excluded.long_name IS NOT NULL AND excluded.long_name <> '' THEN excluded.long_name
				ELSE nodes.long_name
			END,
			short_name = CASE
				WHEN excluded.short_name IS NOT NULL AND excluded.short_name <> '' THEN excluded.short_name
				ELSE nodes.short_name
			END,
			battery_level = COALESCE(excluded.battery_level, nodes.battery_level),
			voltage = COALESCE(excluded.voltage, nodes.voltage),
			board_model = CASE
				WHEN excluded.board_model IS NOT NULL AND excluded.board_model <> '' THEN excluded.board_model
				ELSE nodes.board_model
			END,
			device_role = CASE
				WHEN excluded.device_role IS NOT NULL AND excluded.device_role <> '' THEN excluded.device_role
				ELSE nodes.device_role
			END,
			last_heard_at = CASE
				WHEN excluded.last_heard_at > nodes.last_heard_at THEN excluded.last_heard_at
				ELSE nodes.last_heard_at
			END,
			rssi = COALESCE(excluded.rssi, nodes.rssi),
			snr = COALESCE(excluded.snr, nodes.snr),
			updated_at = CASE
				WHEN excluded.updated_at > nodes.updated_at THEN excluded.updated_at
				ELSE nodes.updated_at
			END,
			latitude = COALESCE(excluded.latitude, nodes.latitude),
			longitude = COALESCE(excluded.longitude, nodes.longitude),
			temperature = COALESCE(excluded.temperature, nodes.temperature),
			humidity = COALESCE(excluded.humidity, nodes.humidity),
			pressure = COALESCE(excluded.pressure, nodes.pressure),
			air_quality_index = COALESCE(excluded.air_quality_index, nodes.air_quality_index),
			power_voltage = COALESCE(excluded.power_voltage, nodes.power_voltage),
			power_current = COALESCE(excluded.power_current, nodes.power_current),
			is_unmessageable = COALESCE(excluded.is_unmessageable, nodes.is_unmessageable),
			channel = COALESCE(excluded.channel, nodes.channel),
			channel_utilization = COALESCE(excluded.channel_utilization, nodes.channel_utilization),
			air_util_tx = COALESCE(excluded.air_util_tx, nodes.air_util_tx),
			uptime_seconds = COALESCE(excluded.uptime_seconds, nodes.uptime_seconds),
			public_key = COALESCE(excluded.public_key, nodes.public_key),
			is_licensed = COALESCE(excluded.is_licensed, nodes.is_licensed),
			firmware_version = CASE
				WHEN excluded.firmware_version IS NOT NULL AND excluded.firmware_version <> '' THEN excluded.firmware_version
				ELSE nodes.firmware_version
			END,
			reboot_count = COALESCE(excluded.reboot_count, nodes.reboot_count),
			favorite = nodes.favorite,
			ignored = nodes.ignored,
			welcomed_at = nodes.welcomed_at
	`,
		n.NodeID, n.LongName, n.ShortName, batteryLevel, voltage, nullableString(n.BoardModel), nullableString(n.Role),
		timeToUnixMillis(n.LastHeardAt), n.RSSI, n.SNR, timeToUnixMillis(n.UpdatedAt),
		latitude, longitude, temperature, humidity, pressure, airQualityIndex,
		powerVoltage, powerCurrent, isUnmessageable, channel, channelUtilization,
		airUtilTx, uptimeSeconds, publicKey, isLicensed, nullableString(n.FirmwareVersion), rebootCount,
		boolToInt64(n.Favorite), boolToInt64(n.Ignored), welcomedAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	return nil
}

func (r *NodeRepo) ListSortedByLastHeard(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			node_id, long_name, short_name, battery_level, voltage, board_model, device_role,
			last_heard_at, rssi, snr, updated_at,
			latitude, longitude, temperature, humidity, pressure, air_quality_index,
			power_voltage, power_current, is_unmessageable, channel, channel_utilization,
			air_util_tx, uptime_seconds, public_key, is_licensed, firmware_version, reboot_count,
			favorite, ignored, welcomed_at, created_at
		FROM nodes
		ORDER BY last_heard_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Node
	for rows.Next() {
		var (
			n                  domain.Node
			heardMs            int64
			updMs              int64
			battery            sql.NullInt64
			voltage            sql.NullFloat64
			board              sql.NullString
			role               sql.NullString
			rssi               sql.NullInt64
			snr                sql.NullFloat64
			latitude           sql.NullFloat64
			longitude          sql.NullFloat64
			temperature        sql.NullFloat64
			humidity           sql.NullFloat64
			pressure           sql.NullFloat64
			aqi                sql.NullFloat64
			powerVoltage       sql.NullFloat64
			powerCurrent       sql.NullFloat64
			unmessageable      sql.NullInt64
			channel            sql.NullInt64
			channelUtilization sql.NullFloat64
			airUtilTx          sql.NullFloat64
			uptimeSeconds      sql.NullInt64
			publicKey          []byte
			isLicensed         sql.NullInt64
			firmwareVersion    sql.NullString
			rebootCount        sql.NullInt64
			favorite           int64
			ignored            int64
			welcomedAtMs       sql.NullInt64
			createdAtMs        sql.NullInt64
		)
		if err := rows.Scan(
			&n.NodeID, &n.LongName, &n.ShortName, &battery, &voltage, &board, &role,
			&heardMs, &rssi, &snr, &updMs,
			&latitude, &longitude, &temperature, &humidity, &pressure, &aqi,
			&powerVoltage, &powerCurrent, &unmessageable, &channel, &channelUtilization,
			&airUtilTx, &uptimeSeconds, &publicKey, &isLicensed, &firmwareVersion, &rebootCount,
			&favorite, &ignored, &welcomedAtMs, &createdAtMs,
		); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.LastHeardAt = unixMillisToTime(heardMs)
		n.UpdatedAt = unixMillisToTime(updMs)
		if battery.Valid && battery.Int64 >= 0 && battery.Int64 <= math.MaxUint32 {
			// #nosec G115 -- guarded by explicit int64 bounds check.
			v := uint32(battery.Int64)
			n.BatteryLevel = &v
		}
		if voltage.Valid {
			v := voltage.Float64
			n.Voltage = &v
		}
		if board.Valid {
			n.BoardModel = board.String
		}
		if role.Valid {
			n.Role = role.String
		}
		if rssi.Valid {
			v := int(rssi.Int64)
			n.RSSI = &v
		}
		if snr.Valid {
			v := snr.Float64
			n.SNR = &v
		}
		if latitude.Valid {
			v := latitude.Float64
			n.Latitude = &v
		}
		if longitude.Valid {
			v := longitude.Float64
			n.Longitude = &v
		}
		if temperature.Valid {
			v := temperature.Float64
			n.Temperature = &v
		}
		if humidity.Valid {
			v := humidity.Float64
			n.Humidity = &v
		}
		if pressure.Valid {
			v := pressure.Float64
			n.Pressure = &v
		}
		if aqi.Valid {
			v := aqi.Float64
			n.AirQualityIndex = &v
		}
		if powerVoltage.Valid {
			v := powerVoltage.Float64
			n.PowerVoltage = &v
		}
		if powerCurrent.Valid {
			v := powerCurrent.Float64
			n.PowerCurrent = &v
		}
		if unmessageable.Valid {
			v := unmessageable.Int64 != 0
			n.IsUnmessageable = &v
		}
		if channel.Valid && channel.Int64 >= 0 && channel.Int64 <= math.MaxUint32 {
			// #nosec G115 -- guarded by explicit int64 bounds check.
			v := uint32(channel.Int64)
			n.Channel = &v
		}
		if channelUtilization.Valid {
			v := channelUtilization.Float64
			n.ChannelUtilization = &v
		}
		if airUtilTx.Valid {
			v := airUtilTx.Float64
			n.AirUtilTx = &v
		}
		if uptimeSeconds.Valid && uptimeSeconds.Int64 >= 0 && uptimeSeconds.Int64 <= math.MaxUint32 {
			// #nosec G115 -- guarded by explicit int64 bounds check.
			v := uint32(uptimeSeconds.Int64)
			n.Uptime = &v
		}
		if len(publicKey) > 0 {
			n.PublicKey = publicKey
		}
		if isLicensed.Valid {
			v := isLicensed.Int64 != 0
			n.IsLicensed = &v
		}
		if firmwareVersion.Valid {
			n.FirmwareVersion = firmwareVersion.String
		}
		if rebootCount.Valid && rebootCount.Int64 >= 0 && rebootCount.Int64 <= math.MaxUint32 {
			// #nosec G115 -- guarded by explicit int64 bounds check.
			v := uint32(rebootCount.Int64)
			n.RebootCount = &v
		}
		n.Favorite = favorite != 0
		n.Ignored = ignored != 0
		if welcomedAtMs.Valid {
			v := unixMillisToTime(welcomedAtMs.Int64)
			n.WelcomedAt = &v
		}
		if createdAtMs.Valid {
			n.CreatedAt = unixMillisToTime(createdAtMs.Int64)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return out, nil
}

// Delete removes a node and its dependent rows (messages whose chat key
// targets this node, traceroutes, telemetry samples) in one transaction.
func (r *NodeRepo) Delete(ctx context.Context, nodeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete node tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	dmChatKey := "dm:" + nodeID
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_key = ?;`, dmChatKey); err != nil {
		return fmt.Errorf("delete node messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE chat_key = ?;`, dmChatKey); err != nil {
		return fmt.Errorf("delete node chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM traceroutes WHERE target_node_id = ?;`, nodeID); err != nil {
		return fmt.Errorf("delete node traceroutes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM telemetry_samples WHERE node_id = ?;`, nodeID); err != nil {
		return fmt.Errorf("delete node telemetry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE node_id = ?;`, nodeID); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete node tx: %w", err)
	}

	return nil
}

// SetFavorite persists the local favorite flag for a node.
func (r *NodeRepo) SetFavorite(ctx context.Context, nodeID string, favorite bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE nodes SET favorite = ? WHERE node_id = ?;`, boolToInt64(favorite), nodeID)
	if err != nil {
		return fmt.Errorf("set node favorite: %w", err)
	}

	return nil
}

// SetIgnored persists the local ignored flag for a node.
func (r *NodeRepo) SetIgnored(ctx context.Context, nodeID string, ignored bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE nodes SET ignored = ? WHERE node_id = ?;`, boolToInt64(ignored), nodeID)
	if err != nil {
		return fmt.Errorf("set node ignored: %w", err)
	}

	return nil
}

// MarkWelcomed persists welcomedAt for a node the first time an
// auto-welcome hook fires for it.
func (r *NodeRepo) MarkWelcomed(ctx context.Context, nodeID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE nodes SET welcomed_at = ? WHERE node_id = ? AND welcomed_at IS NULL;`, timeToUnixMillis(at), nodeID)
	if err != nil {
		return fmt.Errorf("mark node welcomed: %w", err)
	}

	return nil
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}

	return 0
}
