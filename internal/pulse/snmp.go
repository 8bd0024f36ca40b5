package pulse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/HerbHall/netwatch/pkg/models"
)

// SNMPChecker GETs the configured OIDs from an SNMP agent.
type SNMPChecker struct{}

// NewSNMPChecker creates an SNMP checker.
func NewSNMPChecker() *SNMPChecker {
	return &SNMPChecker{}
}

// Check fetches every configured OID. All OIDs resolving is online, some or
// all OIDs failing on a responding agent is warning, and no response is down.
func (c *SNMPChecker) Check(ctx context.Context, target Target) (*CheckResult, error) {
	cfg, ok := target.Config.(models.SNMPConfig)
	if !ok {
		return nil, fmt.Errorf("%w: snmp checker got %T", models.ErrInvalidConfig, target.Config)
	}

	client, err := newSNMPClient(ctx, target.Address, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		return downResult(fmt.Sprintf("connect: %v", err), nil), nil
	}
	defer client.Conn.Close()

	start := time.Now()
	values, failed, err := snmpGetAll(client.Get, cfg.OIDs, client.MaxOids)
	if err != nil {
		return downResult(err.Error(), nil), nil
	}
	elapsed := time.Since(start)

	detail := map[string]any{"values": values}
	status := models.StatusOnline
	if len(failed) > 0 {
		detail["failed_oids"] = failed
		status = models.StatusWarning
	}
	return &CheckResult{Status: status, ResponseTimeMs: millis(elapsed), Detail: detail}, nil
}

// snmpGetFunc issues one SNMP GET. (*gosnmp.GoSNMP).Get satisfies it.
type snmpGetFunc func(oids []string) (*gosnmp.SnmpPacket, error)

// snmpGetAll fetches oids in requests of at most maxOids each, since gosnmp
// refuses larger PDUs. If the agent rejects a request as a whole (SNMPv1
// reports a single error for the PDU) each OID in it is retried on its own so
// one bad OID does not hide the others. A transport error is returned only
// when the agent never answered; later failed requests mark their OIDs failed.
func snmpGetAll(get snmpGetFunc, oids []string, maxOids int) (map[string]any, []string, error) {
	if maxOids <= 0 {
		maxOids = gosnmp.MaxOids
	}
	values := make(map[string]any, len(oids))
	failed := []string{}
	answered := false

	for start := 0; start < len(oids); start += maxOids {
		chunk := oids[start:min(start+maxOids, len(oids))]
		pkt, err := get(chunk)
		if err != nil {
			if !answered {
				return nil, nil, fmt.Errorf("snmp get: %w", err)
			}
			failed = append(failed, chunk...)
			continue
		}
		answered = true
		if pkt.Error == gosnmp.NoError {
			collectPDUs(pkt.Variables, chunk, values, &failed)
			continue
		}
		for _, oid := range chunk {
			one, err := get([]string{oid})
			if err != nil || one.Error != gosnmp.NoError {
				failed = append(failed, oid)
				continue
			}
			collectPDUs(one.Variables, []string{oid}, values, &failed)
		}
	}
	return values, failed, nil
}

func collectPDUs(vars []gosnmp.SnmpPDU, oids []string, values map[string]any, failed *[]string) {
	byName := make(map[string]gosnmp.SnmpPDU, len(vars))
	for _, v := range vars {
		byName[strings.TrimPrefix(v.Name, ".")] = v
	}
	for _, oid := range oids {
		v, ok := byName[strings.TrimPrefix(oid, ".")]
		if !ok {
			*failed = append(*failed, oid)
			continue
		}
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			*failed = append(*failed, oid)
		default:
			values[oid] = pduValue(v)
		}
	}
}

func pduValue(v gosnmp.SnmpPDU) any {
	switch v.Type {
	case gosnmp.OctetString, gosnmp.ObjectDescription:
		if b, ok := v.Value.([]byte); ok {
			return string(b)
		}
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		if s, ok := v.Value.(string); ok {
			return s
		}
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(v.Value).Int64()
	}
	return fmt.Sprint(v.Value)
}

func newSNMPClient(ctx context.Context, address string, cfg models.SNMPConfig) (*gosnmp.GoSNMP, error) {
	client := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    address,
		Port:      uint16(cfg.Port), //nolint:gosec // port validated to 1..65535
		Community: cfg.Community,
		Timeout:   timeoutOf(cfg.TimeoutSeconds),
		Retries:   cfg.Retries,
		MaxOids:   gosnmp.MaxOids,
	}

	switch cfg.Version {
	case models.SNMPVersion1:
		client.Version = gosnmp.Version1
	case models.SNMPVersion2c:
		client.Version = gosnmp.Version2c
	case models.SNMPVersion3:
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		usm := &gosnmp.UsmSecurityParameters{UserName: cfg.Username}
		client.MsgFlags = gosnmp.NoAuthNoPriv
		if cfg.AuthProtocol != "" {
			usm.AuthenticationProtocol = snmpAuthProtocol(cfg.AuthProtocol)
			usm.AuthenticationPassphrase = cfg.AuthPassphrase
			client.MsgFlags = gosnmp.AuthNoPriv
		}
		if cfg.PrivProtocol != "" {
			usm.PrivacyProtocol = snmpPrivProtocol(cfg.PrivProtocol)
			usm.PrivacyPassphrase = cfg.PrivPassphrase
			client.MsgFlags = gosnmp.AuthPriv
		}
		client.SecurityParameters = usm
	default:
		return nil, fmt.Errorf("%w: snmp version %q", models.ErrInvalidConfig, cfg.Version)
	}
	return client, nil
}

func snmpAuthProtocol(p string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(p) {
	case "MD5":
		return gosnmp.MD5
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.SHA
	}
}

func snmpPrivProtocol(p string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(p) {
	case "DES":
		return gosnmp.DES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.AES
	}
}
