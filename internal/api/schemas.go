package api

// Amounts travel as decimal strings in the ledger currency. Precision and
// sign are checked again when they are converted to minor units.

const createAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["code", "name", "account_type"],
  "properties": {
    "code": {"type": "string", "pattern": "^[A-Za-z0-9_-]{1,50}$"},
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "account_type": {"type": "string", "enum": ["asset", "liability", "equity", "revenue", "expense"]},
    "entity": {
      "type": "object",
      "additionalProperties": false,
      "required": ["entity_type", "entity_id"],
      "properties": {
        "entity_type": {"type": "string", "enum": ["merchant", "trader", "affiliate", "system"]},
        "entity_id": {"type": "string", "minLength": 1, "maxLength": 100}
      }
    }
  }
}`

const postEntrySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["reference_type", "reference_id", "lines"],
  "properties": {
    "reference_type": {"type": "string", "enum": ["payin", "payout", "dispute", "settlement", "opening"]},
    "reference_id": {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": "string", "maxLength": 500},
    "entry_date": {"type": "string", "format": "date-time"},
    "lines": {
      "type": "array",
      "minItems": 2,
      "maxItems": 100,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["account_code", "entry_type", "amount"],
        "properties": {
          "account_code": {"type": "string", "minLength": 1, "maxLength": 50},
          "entry_type": {"type": "string", "enum": ["debit", "credit"]},
          "amount": {"$ref": "#/$defs/amount"}
        }
      }
    }
  },
  "$defs": {
    "amount": {"type": "string", "pattern": "^[0-9]{1,19}(\\.[0-9]{1,18})?$"}
  }
}`

const completedSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["reference_type", "reference_id", "entity_account", "clearing_account", "amount"],
  "properties": {
    "reference_type": {"type": "string", "enum": ["payin", "payout"]},
    "reference_id": {"type": "string", "minLength": 1, "maxLength": 100},
    "entity_account": {"type": "string", "minLength": 1, "maxLength": 50},
    "clearing_account": {"type": "string", "minLength": 1, "maxLength": 50},
    "amount": {"$ref": "#/$defs/amount"},
    "description": {"type": "string", "maxLength": 500},
    "fee_split": {
      "type": "array",
      "maxItems": 20,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["account_code", "amount"],
        "properties": {
          "account_code": {"type": "string", "minLength": 1, "maxLength": 50},
          "amount": {"$ref": "#/$defs/amount"}
        }
      }
    }
  },
  "$defs": {
    "amount": {"type": "string", "pattern": "^[0-9]{1,19}(\\.[0-9]{1,18})?$"}
  }
}`

const reverseSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["reason"],
  "properties": {
    "reason": {"type": "string", "minLength": 1, "maxLength": 400}
  }
}`

const withdrawalSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["entity_type", "entity_id", "amount", "destination"],
  "properties": {
    "entity_type": {"type": "string", "enum": ["merchant", "trader", "affiliate"]},
    "entity_id": {"type": "string", "minLength": 1, "maxLength": 100},
    "amount": {"type": "string", "pattern": "^[0-9]{1,19}(\\.[0-9]{1,18})?$"},
    "destination": {
      "type": "object",
      "additionalProperties": false,
      "required": ["kind", "address"],
      "properties": {
        "kind": {"type": "string", "enum": ["bank_account", "crypto_wallet"]},
        "address": {"type": "string", "minLength": 1, "maxLength": 128},
        "network": {"type": "string", "maxLength": 32},
        "holder_name": {"type": "string", "maxLength": 128}
      }
    }
  }
}`

const adjustmentSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["entity_type", "entity_id", "amount", "is_credit", "reason"],
  "properties": {
    "entity_type": {"type": "string", "enum": ["merchant", "trader", "affiliate", "system"]},
    "entity_id": {"type": "string", "minLength": 1, "maxLength": 100},
    "amount": {"type": "string", "pattern": "^[0-9]{1,19}(\\.[0-9]{1,18})?$"},
    "is_credit": {"type": "boolean"},
    "reference_id": {"type": "string", "minLength": 1, "maxLength": 100},
    "reason": {
      "type": "object",
      "additionalProperties": false,
      "required": ["code", "note"],
      "properties": {
        "code": {"type": "string", "enum": ["correction", "chargeback", "fee_refund", "goodwill", "other"]},
        "note": {"type": "string", "minLength": 1, "maxLength": 400}
      }
    }
  }
}`

const acknowledgeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["note"],
  "properties": {
    "note": {"type": "string", "minLength": 1, "maxLength": 400}
  }
}`
