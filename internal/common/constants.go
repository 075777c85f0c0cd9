package common

// Party registration defaults
const DEFAULT_PARTY_IP = "127.0.0.1"
const DEFAULT_PARTY_PORT = 6379
const DEFAULT_PARTY_ROLE = "head"
const DEFAULT_PARTY_RESOURCES = 16

// Mock flow parties
const MOCK_HEAD_NAME = "p"
const MOCK_WORKER_NAME = "w"

// Cluster runtime
const RAY_BINARY = "ray"
const RAY_IMAGE = "rayproject/ray:2.9.3"

// Kubernetes labels for party deployments
const PARTY_DEPLOYMENT_PREFIX = "mpc-party"
const PARTY_NAME_LABEL = "mpc/party"
const PARTY_ROLE_LABEL = "mpc/role"

// Dataset fixture
const DATASET_TOTAL_COLUMNS = 30
const DATASET_ROWS = 569
const DATASET_SEED = 7

// Events
const NODE_STATE_CHANGE_EVENT_TYPE = "NodeStateChanged"
const CLUSTER_CREATED_EVENT_TYPE = "ClusterCreated"
const SESSION_INITIALIZED_EVENT_TYPE = "SessionInitialized"
const RUN_FINISHED_EVENT_TYPE = "RunFinished"

// Node states
const NODE_REACHABLE = "REACHABLE"
const NODE_UNREACHABLE = "UNREACHABLE"

// Responses
const PARTIES_CREATED_MESSAGE = "Parties created successfully"
const MOCK_MESSAGE = "Mock endpoint"
