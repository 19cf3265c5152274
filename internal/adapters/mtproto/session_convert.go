package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// ErrUnsupportedSessionFormat возвращается, когда формат сессии не распознан.
var ErrUnsupportedSessionFormat = errors.New("mtproto: неизвестный формат сессии")

// NormalizeSessionBytes приводит сессию MTProto к JSON-формату gotd
// session.Storage. Понимает готовый gotd JSON, экспорт аккаунта Telethon,
// JSON-дамп таблицы sessions и строковую сессию Telethon. Возвращает данные
// и признак того, что потребовалась конвертация.
func NormalizeSessionBytes(raw []byte) ([]byte, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, errors.New("mtproto: пустая сессия")
	}

	if isGotdJSON(trimmed) {
		return append([]byte(nil), trimmed...), false, nil
	}

	decoders := []func([]byte) ([]byte, error){
		decodeTelethonAccount,
		decodeTelethonRows,
		decodeTelethonString,
	}
	for _, decode := range decoders {
		if converted, err := decode(trimmed); err == nil {
			return converted, true, nil
		}
	}
	return nil, false, ErrUnsupportedSessionFormat
}

func isGotdJSON(raw []byte) bool {
	var head struct {
		Version int `json:"Version"`
	}
	return json.Unmarshal(raw, &head) == nil && head.Version != 0
}

// decodeTelethonAccount вытаскивает строковую сессию из экспорта аккаунта
// Telethon: она лежит в поле extra_params.
func decodeTelethonAccount(raw []byte) ([]byte, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	if account.ExtraParams == "" {
		return nil, errors.New("в экспорте аккаунта нет extra_params")
	}
	return decodeTelethonString([]byte(account.ExtraParams))
}

// decodeTelethonRows разбирает JSON-дамп таблицы sessions SQLite-файла
// Telethon и берёт первую пригодную строку.
func decodeTelethonRows(raw []byte) ([]byte, error) {
	var rows []struct {
		DCID          int    `json:"dc_id"`
		ServerAddress string `json:"server_address"`
		Port          int    `json:"port"`
		AuthKey       string `json:"auth_key"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		data, err := sessionFromRow(row.DCID, row.ServerAddress, row.Port, row.AuthKey)
		if err != nil {
			return nil, err
		}
		return gotdPayload(data)
	}
	return nil, errors.New("в дампе sessions нет пригодных строк")
}

// decodeTelethonString конвертирует строковую сессию средствами gotd и
// добирает конфиг DC, которого в строковом формате нет.
func decodeTelethonString(raw []byte) ([]byte, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), "\"'\n\r\t")
	if text == "" {
		return nil, errors.New("строковая сессия пуста")
	}

	data, err := session.TelethonSession(text)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		if host, portStr, splitErr := net.SplitHostPort(data.Addr); splitErr == nil {
			if port, convErr := strconv.Atoi(portStr); convErr == nil {
				data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
			}
		}
	}
	return gotdPayload(*data)
}

func sessionFromRow(dcID int, host string, port int, authKeyHex string) (session.Data, error) {
	authKeyHex = strings.Trim(strings.TrimSpace(authKeyHex), "'\"")
	rawKey, err := hex.DecodeString(authKeyHex)
	if err != nil {
		return session.Data{}, fmt.Errorf("auth_key не в hex: %w", err)
	}

	var key crypto.Key
	if len(rawKey) != len(key) {
		return session.Data{}, fmt.Errorf("длина auth_key %d байт вместо %d", len(rawKey), len(key))
	}
	copy(key[:], rawKey)
	keyID := key.WithID().ID

	return session.Data{
		Config: session.Config{
			ThisDC:    dcID,
			DCOptions: []tg.DCOption{{ID: dcID, IPAddress: host, Port: port}},
		},
		DC:        dcID,
		Addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		AuthKey:   append([]byte(nil), key[:]...),
		AuthKeyID: append([]byte(nil), keyID[:]...),
	}, nil
}

// gotdPayload оборачивает данные сессии в конверт session.Storage.
func gotdPayload(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
